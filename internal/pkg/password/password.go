package password

import (
	"golang.org/x/crypto/bcrypt"
)

const cost = 10 // bcrypt cost factor

// Hash hashes a password or PIN using bcrypt
func Hash(plaintext string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	return string(bytes), err
}

// Verify compares plaintext with a stored bcrypt hash
func Verify(plaintext, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	return err == nil
}
