package services

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "starmf-gateway/internal/errors"
)

func newUploadService(env *testEnv) *UploadService {
	return NewUploadService(env.client, env.sessions, env.creds, zerolog.Nop())
}

func TestUploadDocument(t *testing.T) {
	env := newTestEnv(t)
	env.client.respond("FileUpload", `{"Status":"100","Remarks":"FILE UPLOADED"}`)
	svc := newUploadService(env)

	err := svc.Upload(context.Background(), UploadInput{
		AdvisorID: "ADV1",
		ClientID:  "CLIENT1",
		Flag:      UploadCheque,
		FileName:  "cheque.jpg",
		Content:   []byte{0xff, 0xd8, 0xff},
	})
	require.NoError(t, err)
}

func TestUploadValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := newUploadService(env)

	cases := []UploadInput{
		{AdvisorID: "ADV1", ClientID: "CLIENT1", Flag: "99", FileName: "f", Content: []byte("x")},
		{AdvisorID: "ADV1", ClientID: "", Flag: UploadAOF, FileName: "f", Content: []byte("x")},
		{AdvisorID: "ADV1", ClientID: "CLIENT1", Flag: UploadAOF, FileName: "", Content: []byte("x")},
		{AdvisorID: "ADV1", ClientID: "CLIENT1", Flag: UploadAOF, FileName: "f", Content: nil},
	}
	for _, input := range cases {
		err := svc.Upload(context.Background(), input)
		var valErr *apperrors.ValidationError
		assert.ErrorAs(t, err, &valErr)
	}
	assert.Equal(t, 0, env.client.callCount(), "invalid uploads never reach the exchange")
}

func TestUploadExchangeRejection(t *testing.T) {
	env := newTestEnv(t)
	env.client.respond("FileUpload", `{"Status":"101","Remarks":"INVALID IMAGE"}`)
	svc := newUploadService(env)

	err := svc.Upload(context.Background(), UploadInput{
		AdvisorID: "ADV1",
		ClientID:  "CLIENT1",
		Flag:      UploadFATCA,
		FileName:  "fatca.pdf",
		Content:   []byte("pdf"),
	})
	var exchErr *apperrors.ExchangeError
	assert.ErrorAs(t, err, &exchErr)
}
