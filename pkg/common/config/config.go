package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Server
	ServerPort   string
	ServerHost   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers   []string
	KafkaGroupID   string
	TelemetryTopic string

	// Warehouse (remote columnar store the bulk pipeline runs against)
	WarehouseProject         string
	WarehouseDataset         string
	MachineDataTable         string
	SessionizedTable         string
	RegistrationTable        string
	DemographicsTable        string
	FeaturesTable            string
	ModelName                string
	ArtifactBucket           string
	WarehouseEndpoint        string
	WarehouseTokenURL        string
	WarehouseClientID        string
	WarehouseClientSecret    string
	WarehouseRequestTimeout  time.Duration
	WarehouseReadinessChecks int

	// ML platform endpoint
	EndpointName    string
	EndpointID      string
	ServingBaseURL  string
	ServingTimeout  time.Duration
	MachineType     string
	MinReplicas     int
	MaxReplicas     int
	ArtifactDir     string
	FeatureCacheTTL time.Duration

	// Downstream service URLs (gateway)
	IngestionBaseURL  string
	FeaturizerBaseURL string
	TrainingBaseURL   string
	PredictionBaseURL string
	GatewayTimeout    time.Duration

	// Ingestion / jobs
	MaxRequestBody          int64
	IngestionAllowedSources []string
	IngestionStatusTTL      time.Duration
	TrainingMaxWorkers      int

	// Pipeline parameters
	Pipeline PipelineParams
}

// PipelineParams holds the feature-engineering knobs shared by the in-process
// aggregator and the warehouse pipeline. Both substrates must be given the
// same values for their outputs to line up.
type PipelineParams struct {
	SessionWindowHours  int     `yaml:"session_window"`
	IntervalMinutes     int     `yaml:"interval_time"`
	RollingWindow       int     `yaml:"rolling_window"`
	PredictionIntervals int     `yaml:"prediction_intervals"`
	HypotensionLimit    float64 `yaml:"idh_threshold"`
}

// fileConfig mirrors the optional config.yaml overlay. Environment variables
// always win over file values.
type fileConfig struct {
	ProjectName string `yaml:"project_name"`
	DatasetName string `yaml:"dataset_name"`
	Model       struct {
		Name           string `yaml:"name"`
		EndpointName   string `yaml:"endpoint_name"`
		PipelineParams `yaml:",inline"`
	} `yaml:"model"`
	Storage struct {
		Bucket string `yaml:"bucket"`
	} `yaml:"storage"`
	Warehouse struct {
		MachineData  string `yaml:"real_time_machine_data"`
		Sessionized  string `yaml:"sessionized_machine_data"`
		Registration string `yaml:"registration_data"`
		Demographics string `yaml:"patient_demographics"`
		Features     string `yaml:"features_dataset"`
	} `yaml:"warehouse"`
}

func Load() *Config {
	file := loadFile(getEnv("CONFIG_FILE", "config.yaml"))

	cfg := &Config{
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		ServerHost:   getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "renalytics"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "renalytics123"),
		PostgresDB:       getEnv("POSTGRES_DB", "renalytics"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:   getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:   getEnv("KAFKA_GROUP_ID", "renalytics-platform"),
		TelemetryTopic: getEnv("TELEMETRY_TOPIC", "machine-telemetry"),

		WarehouseProject:         getEnv("WAREHOUSE_PROJECT", file.ProjectName),
		WarehouseDataset:         getEnv("WAREHOUSE_DATASET", file.DatasetName),
		MachineDataTable:         getEnv("MACHINE_DATA_TABLE", defaultStr(file.Warehouse.MachineData, "real_time_machine_data")),
		SessionizedTable:         getEnv("SESSIONIZED_TABLE", defaultStr(file.Warehouse.Sessionized, "sessionized_machine_data")),
		RegistrationTable:        getEnv("REGISTRATION_TABLE", defaultStr(file.Warehouse.Registration, "registration_data")),
		DemographicsTable:        getEnv("DEMOGRAPHICS_TABLE", defaultStr(file.Warehouse.Demographics, "patient_demographics")),
		FeaturesTable:            getEnv("FEATURES_TABLE", defaultStr(file.Warehouse.Features, "idh_features")),
		ModelName:                getEnv("MODEL_NAME", defaultStr(file.Model.Name, "idh_classifier")),
		ArtifactBucket:           getEnv("ARTIFACT_BUCKET", file.Storage.Bucket),
		WarehouseEndpoint:        getEnv("WAREHOUSE_ENDPOINT", ""),
		WarehouseTokenURL:        getEnv("WAREHOUSE_TOKEN_URL", ""),
		WarehouseClientID:        getEnv("WAREHOUSE_CLIENT_ID", ""),
		WarehouseClientSecret:    getEnv("WAREHOUSE_CLIENT_SECRET", ""),
		WarehouseRequestTimeout:  getDuration("WAREHOUSE_REQUEST_TIMEOUT", 5*time.Minute),
		WarehouseReadinessChecks: getIntEnv("WAREHOUSE_READINESS_CHECKS", 5),

		EndpointName:    getEnv("MODEL_ENDPOINT_NAME", file.Model.EndpointName),
		EndpointID:      getEnv("MODEL_ENDPOINT", ""),
		ServingBaseURL:  getEnv("SERVING_BASE_URL", ""),
		ServingTimeout:  getDuration("SERVING_TIMEOUT", 60*time.Second),
		MachineType:     getEnv("SERVING_MACHINE_TYPE", "n1-standard-4"),
		MinReplicas:     getIntEnv("SERVING_MIN_REPLICAS", 1),
		MaxReplicas:     getIntEnv("SERVING_MAX_REPLICAS", 3),
		ArtifactDir:     getEnv("ARTIFACT_DIR", "artifacts"),
		FeatureCacheTTL: getDuration("FEATURE_CACHE_TTL", 5*time.Minute),

		IngestionBaseURL:  getEnv("INGESTION_BASE_URL", "http://localhost:8081"),
		FeaturizerBaseURL: getEnv("FEATURIZER_BASE_URL", "http://localhost:8082"),
		TrainingBaseURL:   getEnv("TRAINING_BASE_URL", "http://localhost:8083"),
		PredictionBaseURL: getEnv("PREDICTION_BASE_URL", "http://localhost:8084"),
		GatewayTimeout:    getDuration("GATEWAY_TIMEOUT", 30*time.Second),

		MaxRequestBody:          int64(getIntEnv("MAX_REQUEST_BODY", 10<<20)),
		IngestionAllowedSources: getStringSliceEnv("INGESTION_ALLOWED_SOURCES", nil),
		IngestionStatusTTL:      getDuration("INGESTION_STATUS_TTL", 72*time.Hour),
		TrainingMaxWorkers:      getIntEnv("TRAINING_MAX_WORKERS", 2),

		Pipeline: PipelineParams{
			SessionWindowHours:  getIntEnv("SESSION_WINDOW_HOURS", defaultInt(file.Model.SessionWindowHours, 12)),
			IntervalMinutes:     getIntEnv("INTERVAL_MINUTES", defaultInt(file.Model.IntervalMinutes, 15)),
			RollingWindow:       getIntEnv("ROLLING_WINDOW", defaultInt(file.Model.RollingWindow, 4)),
			PredictionIntervals: getIntEnv("PREDICTION_INTERVALS", defaultInt(file.Model.PredictionIntervals, 5)),
			HypotensionLimit:    getFloatEnv("IDH_THRESHOLD", defaultFloat(file.Model.HypotensionLimit, 90.0)),
		},
	}

	return cfg
}

func loadFile(path string) fileConfig {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc
	}
	_ = yaml.Unmarshal(data, &fc)
	return fc
}

func defaultStr(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func defaultInt(value, fallback int) int {
	if value != 0 {
		return value
	}
	return fallback
}

func defaultFloat(value, fallback float64) float64 {
	if value != 0 {
		return value
	}
	return fallback
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
