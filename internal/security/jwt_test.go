package security

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndParseToken(t *testing.T) {
	token, errGen := GenerateToken("s3cret", 42, "ada", time.Hour)
	if errGen != nil {
		t.Fatalf("GenerateToken() error = %v", errGen)
	}
	claims, errParse := ParseToken("s3cret", token)
	if errParse != nil {
		t.Fatalf("ParseToken() error = %v", errParse)
	}
	if claims.UserID != 42 || claims.Name != "ada" || claims.Subject != "42" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, errGen := GenerateToken("s3cret", 42, "", time.Hour)
	if errGen != nil {
		t.Fatalf("GenerateToken() error = %v", errGen)
	}
	if _, errParse := ParseToken("other", token); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("ParseToken() error = %v, want ErrInvalidToken", errParse)
	}
}

func TestParseTokenExpired(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	claims := UserClaims{
		UserID: 7,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
		},
	}
	token, errSign := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	if errSign != nil {
		t.Fatalf("sign: %v", errSign)
	}
	if _, errParse := ParseToken("s3cret", token); !errors.Is(errParse, ErrExpiredToken) {
		t.Fatalf("ParseToken() error = %v, want ErrExpiredToken", errParse)
	}
}

func TestParseTokenRequiresIssuerAndUser(t *testing.T) {
	foreign := UserClaims{
		UserID: 7,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, foreign).SignedString([]byte("s3cret"))
	if _, errParse := ParseToken("s3cret", token); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("foreign issuer: error = %v, want ErrInvalidToken", errParse)
	}

	anonymous, errGen := GenerateToken("s3cret", 0, "", time.Hour)
	if errGen != nil {
		t.Fatalf("GenerateToken() error = %v", errGen)
	}
	if _, errParse := ParseToken("s3cret", anonymous); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("zero user: error = %v, want ErrInvalidToken", errParse)
	}
}

func TestGenerateTokenRequiresSecret(t *testing.T) {
	if _, errGen := GenerateToken("", 1, "", time.Hour); errGen == nil {
		t.Fatal("expected error for empty secret")
	}
}
