package utils

import (
	"reflect"
	"testing"
	"time"

	"pushlytics/api/models"
)

func TestParseDateRange(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 4, 59, 0, time.UTC)
	minute := time.Date(2025, 3, 10, 15, 4, 0, 0, time.UTC)

	tests := []struct {
		name      string
		start     string
		end       string
		preset    string
		wantStart time.Time
		wantEnd   time.Time
		wantErr   bool
	}{
		{
			name: "nothing given",
		},
		{
			name:      "preset only",
			preset:    "7d",
			wantStart: minute.Add(-7 * 24 * time.Hour),
			wantEnd:   minute,
		},
		{
			name:      "preset is case insensitive",
			preset:    "24H",
			wantStart: minute.Add(-24 * time.Hour),
			wantEnd:   minute,
		},
		{
			name:      "explicit dates win over preset",
			start:     "2025-01-01",
			end:       "2025-01-31",
			preset:    "1y",
			wantStart: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 1, 31, 23, 59, 59, 999999999, time.UTC),
		},
		{
			name:      "rfc3339 bounds",
			start:     "2025-01-01T10:00:00+02:00",
			end:       "2025-01-02T00:00:00Z",
			wantStart: time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "start without end runs to now",
			start:     "2025-03-01",
			wantStart: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   minute,
		},
		{
			name:      "preset anchored at explicit end",
			end:       "2025-02-01T00:00:00Z",
			preset:    "30d",
			wantStart: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "end only leaves start to the engine",
			end:     "2025-02-01T00:00:00Z",
			wantEnd: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		{name: "unknown preset", preset: "2w", wantErr: true},
		{name: "bad start", start: "yesterday", wantErr: true},
		{name: "bad end", end: "01/02/2025", wantErr: true},
		{name: "end before start", start: "2025-02-01", end: "2025-01-01", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDateRange(tt.start, tt.end, tt.preset, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDateRange() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !got.Start.Equal(tt.wantStart) || !got.End.Equal(tt.wantEnd) {
				t.Errorf("ParseDateRange() = [%v, %v], want [%v, %v]", got.Start, got.End, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in     string
		want   models.Period
		wantOK bool
	}{
		{"", "", true},
		{"day", models.PeriodDay, true},
		{"Week", models.PeriodWeek, true},
		{" MONTH ", models.PeriodMonth, true},
		{"Quarter", models.Period("quarter"), false},
	}
	for _, tt := range tests {
		got, ok := ParsePeriod(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParsePeriod(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseOffsets(t *testing.T) {
	tests := []struct {
		in     string
		want   []int
		wantOK bool
	}{
		{"", nil, true},
		{"0,1,7,30", []int{0, 1, 7, 30}, true},
		{" 1 , 7 ", []int{1, 7}, true},
		{"1,-2", nil, false},
		{"1,x", nil, false},
	}
	for _, tt := range tests {
		got, ok := ParseOffsets(tt.in)
		if ok != tt.wantOK || !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseOffsets(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestJWTRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	token, err := GenerateJWT(secret, "org-1", "user-7", "analyst", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT() error = %v", err)
	}

	claims, err := ValidateJWT(secret, token)
	if err != nil {
		t.Fatalf("ValidateJWT() error = %v", err)
	}
	if claims.OrgID != "org-1" || claims.UserID != "user-7" || claims.Role != "analyst" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.Issuer != jwtIssuer {
		t.Errorf("issuer = %q", claims.Issuer)
	}
}

func TestValidateJWTRejects(t *testing.T) {
	secret := []byte("test-secret")

	wrongKey, _ := GenerateJWT([]byte("other-secret"), "org-1", "u", "", time.Hour)
	expired, _ := GenerateJWT(secret, "org-1", "u", "", -time.Minute)
	noOrg, _ := GenerateJWT(secret, "", "u", "", time.Hour)

	tests := map[string]string{
		"wrong key": wrongKey,
		"expired":   expired,
		"no org":    noOrg,
		"garbage":   "not.a.jwt",
	}
	for name, token := range tests {
		if _, err := ValidateJWT(secret, token); err == nil {
			t.Errorf("%s: ValidateJWT() should fail", name)
		}
	}
}
