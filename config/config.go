package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/franmendez/ticketera/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	JWTSecret string

	// Mercado Pago
	MPAccessToken       string
	ExpectedCollectorID int
	RequireLiveMode     bool
	WebhookRetries      int
	WebhookRetryDelay   time.Duration
	NotificationURL     string
	CheckoutBackURL     string

	AdminSecret     string
	CommissionRate  float64
	StalePaymentTTL time.Duration
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		MPAccessToken:       os.Getenv("MP_ACCESS_TOKEN"),
		ExpectedCollectorID: getEnvAsInt("MP_COLLECTOR_ID", 0),
		RequireLiveMode:     getEnvAsBool("MP_REQUIRE_LIVE_MODE", false),
		WebhookRetries:      getEnvAsInt("WEBHOOK_RETRIES", 5),
		WebhookRetryDelay:   getEnvAsDuration("WEBHOOK_RETRY_DELAY", "800ms"),
		NotificationURL:     os.Getenv("MP_NOTIFICATION_URL"),
		CheckoutBackURL:     os.Getenv("CHECKOUT_BACK_URL"),

		AdminSecret:     os.Getenv("ADMIN_SECRET"),
		CommissionRate:  getEnvAsFloat("COMMISSION_RATE", 0.1),
		StalePaymentTTL: getEnvAsDuration("STALE_PAYMENT_TTL", "24h"),
	}

	if cfg.MPAccessToken == "" {
		return nil, fmt.Errorf("MP_ACCESS_TOKEN is required")
	}
	return cfg, nil
}

func InitDatabase(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&models.Role{}, &models.User{},
		&models.Event{}, &models.Tier{}, &models.Product{},
		&models.Payment{}, &models.Ticket{},
		&models.WebhookEvent{}, &models.Settlement{},
	)
	if err != nil {
		return nil, err
	}

	seedRoles(db)

	return db, nil
}

func seedRoles(db *gorm.DB) {
	roles := []models.Role{
		{Name: "organizer"},
		{Name: "attendee"},
		{Name: "admin"},
	}

	for _, role := range roles {
		var existingRole models.Role
		result := db.Where("name = ?", role.Name).First(&existingRole)
		if result.Error != nil {
			db.Create(&role)
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key, defaultValue string) time.Duration {
	if duration, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
