package recognize

import (
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"medcab/internal/catalog"
)

// Strategy is one recognition approach with a uniform result shape. The
// cascade holds strategies as an ordered list rather than a type hierarchy
// so each stays decoupled and independently testable.
type Strategy struct {
	Method Method
	Run    func(img gocv.Mat, snapshot catalog.Snapshot) ([]Match, error)
}

// Cascade tries strategies in fixed priority order and short-circuits on
// the first one that yields an acceptable match. The ordering is an
// accuracy/cost trade-off: the most discriminating method runs first.
type Cascade struct {
	strategies []Strategy
	log        *logrus.Entry
}

// NewCascade assembles the standard pipeline: classifier (when a trained
// model is configured), then feature matching, then image similarity.
func NewCascade(classifier *Classifier, similarity *SimilarityMatcher, log *logrus.Entry) *Cascade {
	var strategies []Strategy

	if classifier != nil {
		strategies = append(strategies, Strategy{
			Method: MethodClassifier,
			Run:    classifier.MatchByClassifier,
		})
	}

	strategies = append(strategies, Strategy{
		Method: MethodFeature,
		Run: func(img gocv.Mat, snapshot catalog.Snapshot) ([]Match, error) {
			f, err := ExtractFeatures(img)
			if err != nil {
				return nil, err
			}
			return MatchByFeatures(f, snapshot), nil
		},
	})

	strategies = append(strategies, Strategy{
		Method: MethodSimilarity,
		Run: func(img gocv.Mat, snapshot catalog.Snapshot) ([]Match, error) {
			return similarity.MatchByImage(img, snapshot), nil
		},
	})

	return &Cascade{strategies: strategies, log: log}
}

// NewCascadeWithStrategies builds a cascade from an explicit strategy list.
func NewCascadeWithStrategies(log *logrus.Entry, strategies ...Strategy) *Cascade {
	return &Cascade{strategies: strategies, log: log}
}

// Identify runs the cascade on a pill image. A strategy error is logged and
// treated as "no match from this strategy": one broken model must not take
// down the whole pipeline. When every strategy comes up empty the result
// method is NONE and the caller must fall back to manual selection; a
// medication identity alone never authorizes an unlock in that case.
//
// Identification is deterministic: the same image against an unchanged
// catalog yields the same method and matches.
func (c *Cascade) Identify(img gocv.Mat, snapshot catalog.Snapshot) Result {
	for _, s := range c.strategies {
		matches, err := s.Run(img, snapshot)
		if err != nil {
			c.log.WithError(err).WithField("method", s.Method).Warn("recognition strategy failed")
			continue
		}
		if len(matches) > 0 {
			c.log.WithFields(logrus.Fields{
				"method":     s.Method,
				"candidates": len(matches),
				"best":       matches[0].Entry.Name,
				"confidence": matches[0].Confidence,
			}).Info("pill identified")
			return Result{Method: s.Method, Matches: matches, Features: c.describe(img, s.Method)}
		}
	}

	c.log.Info("pill recognition exhausted all strategies")
	return Result{Method: MethodNone, Features: c.describe(img, MethodNone)}
}

// describe attaches extracted descriptors to feature-based and empty
// results. On a miss they let the operator enroll the unknown pill instead
// of retrying blindly.
func (c *Cascade) describe(img gocv.Mat, method Method) *PillFeatures {
	if method != MethodFeature && method != MethodNone {
		return nil
	}
	f, err := ExtractFeatures(img)
	if err != nil {
		return nil
	}
	return f
}
