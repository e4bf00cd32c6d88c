package utils

import (
	"strconv"
	"strings"
	"time"
)

// ConnectionParams параметры подключения к PostgreSQL
type ConnectionParams struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Timeout  time.Duration
	// AppName попадает в pg_stat_activity.application_name
	AppName string
}

// GenerateConnectionString собирает DSN в формате key=value, понятном pgx
func GenerateConnectionString(p ConnectionParams) (string, error) {
	if p.Host == "" {
		return "", ErrStorageEmptyHostName
	}
	if p.Port <= 0 || p.Port > 65535 {
		return "", ErrStorageInvalidPortNumber
	}
	if p.User == "" {
		return "", ErrStorageEmptyUsername
	}
	if p.Password == "" {
		return "", ErrStorageEmptyPassword
	}
	if p.DBName == "" {
		return "", ErrStorageInvalidDatabaseName
	}
	switch p.SSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return "", ErrStorageInvalidSslMode
	}
	if p.Timeout < 0 {
		return "", ErrStorageInvalidTimeout
	}

	var conStr strings.Builder
	write := func(key, value string) {
		if conStr.Len() > 0 {
			conStr.WriteByte(' ')
		}
		conStr.WriteString(key)
		conStr.WriteByte('=')
		conStr.WriteString(quoteDSNValue(value))
	}

	write("host", p.Host)
	write("port", strconv.Itoa(p.Port))
	write("user", p.User)
	write("password", p.Password)
	write("dbname", p.DBName)
	write("sslmode", p.SSLMode)
	if p.Timeout > 0 {
		write("connect_timeout", strconv.Itoa(int(p.Timeout.Seconds())))
	}
	if p.AppName != "" {
		write("application_name", p.AppName)
	}

	return conStr.String(), nil
}

// quoteDSNValue экранирует значение с пробелами, кавычками или обратной косой чертой
func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
