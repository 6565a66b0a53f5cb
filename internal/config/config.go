// Package config loads cabinet settings from the environment, with an
// optional .env file for development deployments.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration. Every value has a MEDCAB_
// environment variable; defaults target a Raspberry Pi deployment.
type Config struct {
	ListenAddr   string `validate:"required"`
	DatabasePath string `validate:"required"`

	LogLevel string `validate:"oneof=debug info warn error"`
	LogDir   string

	// Cabinet lock controller. Either transport may be left empty.
	ControllerAddr string `validate:"omitempty,url"`
	SerialPort     string

	// Hex-encoded SHA-256 of the emergency PIN. Empty disables
	// emergency access.
	EmergencyPINHash string `validate:"omitempty,len=64,hexadecimal"`

	// EnforceBlocks turns dose-safety BLOCK decisions into hard
	// refusals instead of recorded warnings.
	EnforceBlocks bool

	// Face pipeline model files.
	FaceDetectorModel  string
	FaceDetectorConfig string
	FaceEmbedderModel  string
	FaceCascadeFile    string

	// Optional pill classifier (ONNX) and its class mapping lives in
	// the catalog; empty skips the classifier stage.
	ClassifierModel string
}

// Load reads the optional .env file, applies MEDCAB_ environment
// variables over the defaults, and validates the result.
func Load() (Config, error) {
	// Missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:         envOr("MEDCAB_LISTEN_ADDR", ":8080"),
		DatabasePath:       envOr("MEDCAB_DB_PATH", "medcab.db"),
		LogLevel:           envOr("MEDCAB_LOG_LEVEL", "info"),
		LogDir:             os.Getenv("MEDCAB_LOG_DIR"),
		ControllerAddr:     os.Getenv("MEDCAB_CONTROLLER_ADDR"),
		SerialPort:         os.Getenv("MEDCAB_SERIAL_PORT"),
		EmergencyPINHash:   os.Getenv("MEDCAB_EMERGENCY_PIN_HASH"),
		EnforceBlocks:      envBool("MEDCAB_ENFORCE_BLOCKS"),
		FaceDetectorModel:  envOr("MEDCAB_FACE_DETECTOR_MODEL", "models/res10_300x300_ssd.caffemodel"),
		FaceDetectorConfig: envOr("MEDCAB_FACE_DETECTOR_CONFIG", "models/deploy.prototxt"),
		FaceEmbedderModel:  envOr("MEDCAB_FACE_EMBEDDER_MODEL", "models/openface.nn4.small2.v1.t7"),
		FaceCascadeFile:    envOr("MEDCAB_FACE_CASCADE_FILE", "models/haarcascade_frontalface_default.xml"),
		ClassifierModel:    os.Getenv("MEDCAB_CLASSIFIER_MODEL"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}
