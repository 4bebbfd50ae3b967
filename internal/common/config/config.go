package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
)

type DB struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`
	Pass string `yaml:"password"`
	Name string `yaml:"database"`
}

type MQ struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	User  string `yaml:"user"`
	Pass  string `yaml:"password"`
	VHost string `yaml:"vhost"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

type Dispatch struct {
	Transport           string `yaml:"transport"` // rabbitmq | kafka
	OfferTimeoutSeconds int    `yaml:"offer_timeout_seconds"`
	HTTPPort            int    `yaml:"http_port"`
}

type App struct {
	Database DB       `yaml:"database"`
	Rabbit   MQ       `yaml:"rabbitmq"`
	Kafka    Kafka    `yaml:"kafka"`
	Dispatch Dispatch `yaml:"dispatch"`
}

// простой YAML-парсер без внешних пакетов (ожидает 2 уровня вложенности)
func Load(path string) (App, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return App{}, err
	}
	a := defaults()
	var cur string
	for _, ln := range strings.Split(string(b), "\n") {
		line := strings.TrimSpace(ln)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasSuffix(line, ":") && !strings.Contains(line, " ") {
			cur = strings.TrimSuffix(line, ":")
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		k := strings.TrimSpace(parts[0])
		v := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		switch cur {
		case "database":
			assignDB(&a.Database, k, v)
		case "rabbitmq":
			assignMQ(&a.Rabbit, k, v)
		case "kafka":
			assignKafka(&a.Kafka, k, v)
		case "dispatch":
			assignDispatch(&a.Dispatch, k, v)
		}
	}
	applyEnv(&a)
	if a.Dispatch.Transport == "rabbitmq" && a.Rabbit.Host == "" {
		return App{}, errors.New("invalid config: rabbitmq host missing")
	}
	if a.Dispatch.Transport == "kafka" && len(a.Kafka.Brokers) == 0 {
		return App{}, errors.New("invalid config: kafka brokers missing")
	}
	return a, nil
}

func defaults() App {
	return App{
		Database: DB{Port: 5432},
		Rabbit:   MQ{Port: 5672, VHost: "/"},
		Kafka:    Kafka{GroupID: "offer-responses"},
		Dispatch: Dispatch{Transport: "rabbitmq", OfferTimeoutSeconds: 25, HTTPPort: 3000},
	}
}

func assignDB(d *DB, k, v string) {
	switch k {
	case "host":
		d.Host = v
	case "port":
		d.Port = atoiSafe(v)
	case "user":
		d.User = v
	case "password":
		d.Pass = v
	case "database":
		d.Name = v
	}
}

func assignMQ(m *MQ, k, v string) {
	switch k {
	case "host":
		m.Host = v
	case "port":
		m.Port = atoiSafe(v)
	case "user":
		m.User = v
	case "password":
		m.Pass = v
	case "vhost":
		m.VHost = v
	}
}

func assignKafka(kf *Kafka, k, v string) {
	switch k {
	case "brokers":
		kf.Brokers = splitCSV(v)
	case "group_id":
		kf.GroupID = v
	}
}

func assignDispatch(d *Dispatch, k, v string) {
	switch k {
	case "transport":
		d.Transport = v
	case "offer_timeout_seconds":
		d.OfferTimeoutSeconds = atoiSafe(v)
	case "http_port":
		d.HTTPPort = atoiSafe(v)
	}
}

// applyEnv lets container deployments override file values without editing
// the config.
func applyEnv(a *App) {
	if v := os.Getenv("DB_HOST"); v != "" {
		a.Database.Host = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		a.Database.Pass = v
	}
	if v := os.Getenv("RABBITMQ_HOST"); v != "" {
		a.Rabbit.Host = v
	}
	if v := os.Getenv("RABBITMQ_PASSWORD"); v != "" {
		a.Rabbit.Pass = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		a.Kafka.Brokers = splitCSV(v)
	}
	if v := os.Getenv("DISPATCH_TRANSPORT"); v != "" {
		a.Dispatch.Transport = v
	}
}

func splitCSV(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func atoiSafe(s string) int {
	var n int
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n = n*10 + int(r-'0')
		}
	}
	return n
}

func FindConfig() (string, error) {
	candidates := []string{"config.yaml", "deploy/config.example.yaml"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fs.ErrNotExist
}
