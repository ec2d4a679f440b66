package token

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/shopgate/internal/model"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestIssuer(now time.Time) *Issuer {
	i := NewIssuer([]byte(testSecret), "shopgate", 30*24*time.Hour)
	i.now = func() time.Time { return now }
	return i
}

func testUser() *model.User {
	return &model.User{
		ID:           42,
		Email:        "a@x.com",
		Role:         "user",
		Organization: "foo.myshopify.com",
	}
}

func assertInvalidToken(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("エラーが返るべき")
	}
	if !model.HasCode(err, model.ErrCodeInvalidToken) {
		t.Errorf("error = %v, want INVALID_TOKEN", err)
	}
}

func TestIssueAndValidate_RoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(now)

	raw, err := issuer.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	p, err := issuer.Validate(raw)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if p.UserID != 42 {
		t.Errorf("UserID = %d, want 42", p.UserID)
	}
	if p.Email != "a@x.com" || p.Role != "user" || p.Organization != "foo.myshopify.com" {
		t.Errorf("Principal = %+v", p)
	}
	if !p.ExpiresAt.Equal(now.Add(30 * 24 * time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", p.ExpiresAt, now.Add(30*24*time.Hour))
	}
}

func TestIssue_OmitsEmptyOrganization(t *testing.T) {
	issuer := newTestIssuer(time.Now())
	u := testUser()
	u.Organization = ""

	raw, err := issuer.Issue(u)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		t.Fatalf("ParseUnverified() error = %v", err)
	}
	if _, ok := claims["org"]; ok {
		t.Error("空のorganizationはクレームに含めないべき")
	}
	for _, key := range []string{"sub", "email", "role", "iat", "exp", "iss"} {
		if _, ok := claims[key]; !ok {
			t.Errorf("クレーム %q が存在しない", key)
		}
	}

	p, err := issuer.Validate(raw)
	if err != nil {
		t.Fatalf("orgなしトークンも検証に成功すべき: %v", err)
	}
	if p.Organization != "" {
		t.Errorf("Organization = %q, want empty", p.Organization)
	}
}

func TestIssue_RequiresUserID(t *testing.T) {
	issuer := newTestIssuer(time.Now())
	if _, err := issuer.Issue(&model.User{Email: "a@x.com"}); err == nil {
		t.Error("IDのないユーザーの発行はエラーになるべき")
	}
}

func TestValidate_Expired(t *testing.T) {
	issuedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	raw, err := newTestIssuer(issuedAt).Issue(testUser())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	later := newTestIssuer(issuedAt.Add(30*24*time.Hour + time.Second))
	_, err = later.Validate(raw)
	assertInvalidToken(t, err)
	if !IsExpired(err) {
		t.Error("IsExpired() = false, want true")
	}
	if Reason(err) != "expired" {
		t.Errorf("Reason() = %q, want expired", Reason(err))
	}
}

func TestValidate_TamperedSignature(t *testing.T) {
	issuer := newTestIssuer(time.Now())
	raw, err := issuer.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	lastDot := strings.LastIndex(raw, ".")
	sig, err := base64.RawURLEncoding.DecodeString(raw[lastDot+1:])
	if err != nil {
		t.Fatalf("署名のデコードに失敗: %v", err)
	}
	for idx := range sig {
		tampered := make([]byte, len(sig))
		copy(tampered, sig)
		tampered[idx] ^= 0xFF
		forged := raw[:lastDot+1] + base64.RawURLEncoding.EncodeToString(tampered)
		_, err := issuer.Validate(forged)
		if err == nil {
			t.Fatalf("署名の%dバイト目を改ざんしたトークンが検証に成功した", idx)
		}
		assertInvalidToken(t, err)
		if IsExpired(err) {
			t.Error("改ざんは期限切れと区別されるべき")
		}
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	raw, err := newTestIssuer(time.Now()).Issue(testUser())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	other := NewIssuer([]byte("ffffffffffffffffffffffffffffffff"), "shopgate", time.Hour)
	_, err = other.Validate(raw)
	assertInvalidToken(t, err)
}

func TestValidate_WrongIssuer(t *testing.T) {
	raw, err := newTestIssuer(time.Now()).Issue(testUser())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	other := NewIssuer([]byte(testSecret), "someone-else", time.Hour)
	_, err = other.Validate(raw)
	assertInvalidToken(t, err)
}

func TestValidate_RejectsOtherAlgorithms(t *testing.T) {
	now := time.Now()
	claims := Claims{
		Email: "a@x.com",
		Role:  "user",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			Issuer:    "shopgate",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	_, err = newTestIssuer(now).Validate(hs512)
	assertInvalidToken(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString(none) error = %v", err)
	}
	_, err = newTestIssuer(now).Validate(none)
	assertInvalidToken(t, err)
}

func TestValidate_NonNumericSubject(t *testing.T) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-number",
			Issuer:    "shopgate",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	_, err = newTestIssuer(now).Validate(raw)
	assertInvalidToken(t, err)
}

func TestValidate_Malformed(t *testing.T) {
	issuer := newTestIssuer(time.Now())
	for _, raw := range []string{"", "abc", "a.b.c", "Bearer x.y.z"} {
		_, err := issuer.Validate(raw)
		assertInvalidToken(t, err)
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractBearer(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ExtractBearer(%q) = %q, %v; want %q, %v", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}
