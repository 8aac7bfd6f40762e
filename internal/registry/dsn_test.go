package registry

import (
	"strings"
	"testing"
)

func TestResolveDSN(t *testing.T) {
	tests := []struct {
		name       string
		driver     string
		dsn        string
		wantDriver string
		wantParts  []string
		wantErr    bool
	}{
		{name: "sqlite path", dsn: "/var/lib/shortsbot/users.db", wantDriver: DriverSQLite, wantParts: []string{"/var/lib/shortsbot/users.db"}},
		{name: "explicit sqlite", driver: "sqlite", dsn: "users.db", wantDriver: DriverSQLite, wantParts: []string{"users.db"}},
		{
			name:       "mysql url inferred",
			dsn:        "mysql://bot:pw@db.example.com/shorts?ssl=true",
			wantDriver: DriverMySQL,
			wantParts:  []string{"bot:pw@tcp(db.example.com:3306)/shorts", "parseTime=true", "tls=true"},
		},
		{
			name:       "mysql url with port",
			dsn:        "mysql://bot:pw@10.0.0.5:3307/shorts",
			wantDriver: DriverMySQL,
			wantParts:  []string{"tcp(10.0.0.5:3307)/shorts"},
		},
		{
			name:       "native mysql dsn",
			driver:     "mysql",
			dsn:        "bot:pw@tcp(127.0.0.1:3306)/shorts",
			wantDriver: DriverMySQL,
			wantParts:  []string{"bot:pw@tcp(127.0.0.1:3306)/shorts", "parseTime=true"},
		},
		{name: "mysql without db", dsn: "mysql://bot:pw@db.example.com", wantErr: true},
		{name: "empty sqlite", driver: "sqlite", wantErr: true},
		{name: "unknown driver", driver: "postgres", dsn: "x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, dsn, err := ResolveDSN(tt.driver, tt.dsn)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got driver=%s dsn=%s", driver, dsn)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if driver != tt.wantDriver {
				t.Fatalf("driver = %s, want %s", driver, tt.wantDriver)
			}
			for _, part := range tt.wantParts {
				if !strings.Contains(dsn, part) {
					t.Errorf("dsn %q missing %q", dsn, part)
				}
			}
		})
	}
}
