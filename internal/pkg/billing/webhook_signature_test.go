package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyEvent(t *testing.T) {
	valid, header := signedEvent(t, "evt_1", "checkout.session.completed", map[string]interface{}{"id": "cs_1"})
	forged, forgedHeader := signedEvent(t, "evt_1", "checkout.session.completed", map[string]interface{}{"id": "cs_1"})
	forgedHeader = forgedHeader[:len(forgedHeader)-4] + "beef"
	notJSON, notJSONHeader := signPayload([]byte("not json"), testSecret)
	noID, noIDHeader := signPayload([]byte(`{"object":"event","type":"invoice.paid","data":{"object":{}}}`), testSecret)
	otherSecret, otherHeader := signPayload(valid, "whsec_other")

	tests := []struct {
		name    string
		payload []byte
		header  string
		secret  string
		wantErr error
	}{
		{"Valid", valid, header, testSecret, nil},
		{"Tampered signature", forged, forgedHeader, testSecret, ErrInvalidSignature},
		{"Signed with another secret", otherSecret, otherHeader, testSecret, ErrInvalidSignature},
		{"Missing header", valid, "", testSecret, ErrInvalidSignature},
		{"Empty secret", valid, header, "", ErrInvalidSignature},
		{"Garbage header", valid, "nonsense", testSecret, ErrInvalidSignature},
		{"Body is not JSON", notJSON, notJSONHeader, testSecret, ErrMalformedPayload},
		{"Missing event id", noID, noIDHeader, testSecret, ErrMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := VerifyEvent(tt.payload, tt.header, tt.secret)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, event)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "evt_1", event.ID)
			assert.Equal(t, "checkout.session.completed", string(event.Type))
		})
	}
}
