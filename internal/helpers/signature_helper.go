package helpers

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// signatureLen is the number of hex characters kept from the ticket hash.
// 12 chars (48 bits) keeps QR payloads short while making forgery without
// knowledge of the payment/event pairing impractical.
const signatureLen = 12

const qrPrefix = "E"

// TicketSignature derives the verification signature embedded in a ticket's
// QR payload: the truncated SHA-256 of "{ticketID}|{paymentID}|{eventID}".
func TicketSignature(ticketID uuid.UUID, paymentID string, eventID uuid.UUID) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", ticketID, paymentID, eventID)))
	return hex.EncodeToString(sum[:])[:signatureLen]
}

// TicketQRPayload builds the string encoded into the entry QR:
// "E|{ticketID}|{signature}".
func TicketQRPayload(ticketID uuid.UUID, paymentID string, eventID uuid.UUID) string {
	return fmt.Sprintf("%s|%s|%s", qrPrefix, ticketID, TicketSignature(ticketID, paymentID, eventID))
}

// ParseTicketQR extracts the ticket id and signature from a scanned QR
// payload.
func ParseTicketQR(payload string) (uuid.UUID, string, error) {
	parts := strings.Split(payload, "|")
	if len(parts) != 3 || parts[0] != qrPrefix {
		return uuid.Nil, "", fmt.Errorf("invalid QR payload format")
	}
	ticketID, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid ticket id in QR payload")
	}
	if len(parts[2]) != signatureLen {
		return uuid.Nil, "", fmt.Errorf("invalid signature length")
	}
	return ticketID, parts[2], nil
}

// VerifyTicketSignature checks a scanned signature against the one derived
// from the ticket's own identifiers, in constant time.
func VerifyTicketSignature(ticketID uuid.UUID, paymentID string, eventID uuid.UUID, signature string) bool {
	expected := TicketSignature(ticketID, paymentID, eventID)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
