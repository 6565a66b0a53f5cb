// medcab is the medication cabinet controller daemon. It authenticates
// operators by face, identifies loose pills and bottle labels, enforces
// dose-safety thresholds, and drives the cabinet lock.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"medcab/internal/bottle"
	"medcab/internal/config"
	"medcab/internal/face"
	"medcab/internal/httpapi"
	"medcab/internal/logging"
	"medcab/internal/recognize"
	"medcab/internal/service"
	"medcab/internal/store/sqlite"
	"medcab/internal/unlock"
	"medcab/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "medcab: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logging.New(logging.Options{Level: cfg.LogLevel, LogDir: cfg.LogDir})
	log.WithField("version", version.Version).Info("starting medcab")

	st, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	gateway := unlock.NewGateway(cfg.ControllerAddr, cfg.SerialPort,
		logging.Component(log, "unlock"))

	deps := httpapi.Deps{
		Gateway: gateway,
		Store:   st,
		Log:     logging.Component(log, "http"),
	}

	// Camera pipelines are optional: a cabinet with missing model files
	// still serves checkout, emergency access, and inventory routes.
	if auth := buildFaceAuth(cfg, st, log); auth != nil {
		deps.Auth = auth
	}
	if cascade := buildCascade(cfg, log); cascade != nil {
		deps.Pills = cascade
	}
	reader, err := bottle.NewReader(logging.Component(log, "bottle"))
	if err != nil {
		log.WithError(err).Warn("bottle scanning disabled")
	} else {
		defer reader.Close()
		deps.Bottles = reader
	}

	deps.Checkout = service.NewCheckoutService(st, gateway, cfg.EnforceBlocks,
		logging.Component(log, "checkout"))
	if cfg.EmergencyPINHash != "" {
		emergency, err := service.NewEmergencyService(cfg.EmergencyPINHash, st,
			gateway, logging.Component(log, "emergency"))
		if err != nil {
			return err
		}
		deps.Emergency = emergency
	}

	_, app := httpapi.New(deps)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.ListenAddr)
	}()
	log.WithField("addr", cfg.ListenAddr).Info("listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
		return app.Shutdown()
	}
}

func buildFaceAuth(cfg config.Config, st *sqlite.Store, log *logrus.Logger) *service.AuthService {
	detector, err := face.NewDetector(cfg.FaceDetectorModel, cfg.FaceDetectorConfig, cfg.FaceCascadeFile)
	if err != nil {
		log.WithError(err).Warn("face authentication disabled")
		return nil
	}
	embedder, err := face.NewEmbedder(cfg.FaceEmbedderModel)
	if err != nil {
		detector.Close()
		log.WithError(err).Warn("face authentication disabled")
		return nil
	}
	identifier := face.NewIdentifier(detector, embedder, logging.Component(log, "face"))
	return service.NewAuthService(st, st, identifier, logging.Component(log, "auth"))
}

func buildCascade(cfg config.Config, log *logrus.Logger) *recognize.Cascade {
	var classifier *recognize.Classifier
	if cfg.ClassifierModel != "" {
		c, err := recognize.NewClassifier(cfg.ClassifierModel)
		if err != nil {
			log.WithError(err).Warn("pill classifier disabled")
		} else {
			classifier = c
		}
	}
	return recognize.NewCascade(classifier, recognize.NewSimilarityMatcher(),
		logging.Component(log, "recognize"))
}
