package idgen

import (
	"crypto/rand"
	"fmt"
)

// GenerateSecureID generates a cryptographically secure ID with the given prefix and length.
// Uses only alphanumeric characters (0-9, a-z) - no dashes or special characters.
func GenerateSecureID(prefix string, length int) (string, error) {
	bytes := make([]byte, length*2)
	_, err := rand.Read(bytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	const charset = "0123456789abcdefghijklmnopqrstuvwxyz"
	encoded := make([]byte, length)
	for i := 0; i < length; i++ {
		encoded[i] = charset[bytes[i]%36] // 36 = len(charset)
	}

	return fmt.Sprintf("%s_%s", prefix, string(encoded)), nil
}

// GenerateConversationID returns a public conversation ID like "conv_ab12cd34".
func GenerateConversationID() (string, error) {
	return GenerateSecureID("conv", 16)
}

// GenerateMessageID returns a public message ID like "msg_ab12cd34".
func GenerateMessageID() (string, error) {
	return GenerateSecureID("msg", 20)
}

// GenerateOperatorID returns a public operator ID like "op_ab12cd34".
func GenerateOperatorID() (string, error) {
	return GenerateSecureID("op", 16)
}
