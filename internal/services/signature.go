package services

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"

	"apna-payments/internal/entities"
	internalErrors "apna-payments/internal/errors"
)

const macField = "mac"

// SignNotification computes the MAC Instamojo attaches to a webhook: an
// HMAC-SHA1 keyed by the private salt over every other field value, ordered
// by case-insensitive key and joined with "|".
func SignNotification(n entities.Notification, salt string) string {
	keys := make([]string, 0, len(n))
	for k := range n {
		if k != macField {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.ToLower(keys[i]) < strings.ToLower(keys[j])
	})

	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = n[k]
	}

	h := hmac.New(sha1.New, []byte(salt))
	h.Write([]byte(strings.Join(values, "|")))
	return hex.EncodeToString(h.Sum(nil))
}

func VerifyMAC(n entities.Notification, salt string) error {
	given := strings.ToLower(n[macField])
	if given == "" {
		return internalErrors.ErrInvalidSignature
	}
	if !hmac.Equal([]byte(given), []byte(SignNotification(n, salt))) {
		return internalErrors.ErrInvalidSignature
	}
	return nil
}
