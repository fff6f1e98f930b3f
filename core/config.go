package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		RequireAuth               bool
		BodyLimit                 string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | inmem
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	UploadsConfig struct {
		Backend          string // local | b2
		Dir              string
		MaxUploadSize    int64
		MaxExtractedSize int64
		B2AccountID      string
		B2AppKey         string
		B2Bucket         string
	}

	GradingConfig struct {
		Extensions []string
		Workers    int
		JobWorkers int
		QueueSize  int
		JobTTL     time.Duration
		CacheTTL   time.Duration
	}

	AIConfig struct {
		GeminiAPIKey string
		Model        string
		BaseURL      string
		Timeout      time.Duration
		MaxRetries   int
		ForceOffline bool
	}

	Config struct {
		Env             string
		Build           string
		AppName         string
		Debug           bool
		TestMode        bool
		SecretKey       string
		FrontendBaseURL string
		WorkDir         string
		RollbarToken    string
		SendgridApiKey  string
		WorkflowPath    string

		defaultFromEmail string

		Server   ServerConfig
		Database DatabaseConfig
		Uploads  UploadsConfig
		Grading  GradingConfig
		AI       AIConfig
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, strconv.Itoa(dbc.Port))
}

func (conf *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(conf.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: conf.AppName, Address: "noreply@localhost"}
	}
	if addr.Name == "" {
		addr.Name = conf.AppName
	}
	return *addr
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "Grading Assistant")
	v.SetDefault("secretKey", "k2$9wq@u!a^7-hz+cb0r=ef(3x)m5*dl#p8s%yn_v&t1og6ij4")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("workflowPath", filepath.Join("data", "workflow.db"))

	v.SetDefault("serverHost", ":5001")
	v.SetDefault("serverDebugHost", ":5002")
	v.SetDefault("serverShutdownTimeout", 10*time.Second)
	v.SetDefault("serverRequireAuth", false)
	v.SetDefault("serverBodyLimit", "64M")
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", 5432)
	v.SetDefault("dbName", "grader")
	v.SetDefault("dbUser", "grader")
	v.SetDefault("dbPassword", "")
	v.SetDefault("dbAdminUser", "")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", true)

	v.SetDefault("uploadsBackend", "local")
	v.SetDefault("uploadsDir", "uploads")
	v.SetDefault("uploadsMaxSize", int64(50<<20))
	v.SetDefault("uploadsMaxExtractedSize", int64(200<<20))
	v.SetDefault("b2AccountID", "")
	v.SetDefault("b2AppKey", "")
	v.SetDefault("b2Bucket", "")

	v.SetDefault("gradingExtensions", ".py")
	v.SetDefault("gradingWorkers", 4)
	v.SetDefault("gradingJobWorkers", 2)
	v.SetDefault("gradingQueueSize", 32)
	v.SetDefault("gradingJobTTL", 24*time.Hour)
	v.SetDefault("gradingCacheTTL", 10*time.Minute)

	v.SetDefault("geminiApiKey", "")
	v.SetDefault("geminiModel", "gemini-2.5-flash")
	v.SetDefault("geminiBaseURL", "https://generativelanguage.googleapis.com")
	v.SetDefault("geminiTimeout", 60*time.Second)
	v.SetDefault("aiMaxRetries", 3)
	v.SetDefault("aiForceOffline", false)
}

// NewConfig loads the app configuration from defaults, an optional `config/.env.<env>` file and the environment.
// Env vars are prefixed by the upper-cased ENV value, eg: DEV_DBHOST, PROD_GEMINIAPIKEY.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
		v.SetDefault("dbEngine", "inmem")
		v.SetDefault("aiForceOffline", true)
	}
	v.SetEnvPrefix(env)

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		AppName:          v.GetString("appName"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		WorkDir:          wd,
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		WorkflowPath:     v.GetString("workflowPath"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                      v.GetString("serverHost"),
			DebugHost:                 v.GetString("serverDebugHost"),
			ShutdownTimeout:           v.GetDuration("serverShutdownTimeout"),
			RequireAuth:               v.GetBool("serverRequireAuth"),
			BodyLimit:                 v.GetString("serverBodyLimit"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetInt("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
		Uploads: UploadsConfig{
			Backend:          v.GetString("uploadsBackend"),
			Dir:              v.GetString("uploadsDir"),
			MaxUploadSize:    v.GetInt64("uploadsMaxSize"),
			MaxExtractedSize: v.GetInt64("uploadsMaxExtractedSize"),
			B2AccountID:      v.GetString("b2AccountID"),
			B2AppKey:         v.GetString("b2AppKey"),
			B2Bucket:         v.GetString("b2Bucket"),
		},
		Grading: GradingConfig{
			Extensions: splitList(v.GetString("gradingExtensions")),
			Workers:    v.GetInt("gradingWorkers"),
			JobWorkers: v.GetInt("gradingJobWorkers"),
			QueueSize:  v.GetInt("gradingQueueSize"),
			JobTTL:     v.GetDuration("gradingJobTTL"),
			CacheTTL:   v.GetDuration("gradingCacheTTL"),
		},
		AI: AIConfig{
			GeminiAPIKey: v.GetString("geminiApiKey"),
			Model:        v.GetString("geminiModel"),
			BaseURL:      v.GetString("geminiBaseURL"),
			Timeout:      v.GetDuration("geminiTimeout"),
			MaxRetries:   v.GetInt("aiMaxRetries"),
			ForceOffline: v.GetBool("aiForceOffline"),
		},
	}
}

// NewTestConfig returns a Config suitable for tests: in-memory storage, offline AI, temp upload dirs.
func NewTestConfig(uploadsDir string) *Config {
	return &Config{
		Env:              "TEST",
		Build:            "test",
		AppName:          "Grading Assistant",
		TestMode:         true,
		SecretKey:        "secret",
		FrontendBaseURL:  "http://localhost:3000",
		defaultFromEmail: "noreply@localhost",
		Server: ServerConfig{
			BodyLimit:                 "64M",
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Database: DatabaseConfig{Engine: "inmem"},
		Uploads: UploadsConfig{
			Backend:          "local",
			Dir:              uploadsDir,
			MaxUploadSize:    10 << 20,
			MaxExtractedSize: 50 << 20,
		},
		Grading: GradingConfig{
			Extensions: []string{".py"},
			Workers:    2,
			JobWorkers: 1,
			QueueSize:  4,
			JobTTL:     time.Hour,
			CacheTTL:   time.Minute,
		},
		AI: AIConfig{MaxRetries: 3, ForceOffline: true},
	}
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = CleanString(item, true /* lower */); item != "" {
			items = append(items, item)
		}
	}
	return items
}
