package generate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genserver/internal/domain"
	"genserver/internal/provider"
)

func submitRequest(kind domain.JobKind, params string) *domain.GenerationRequest {
	return &domain.GenerationRequest{
		ID:     uuid.NewString(),
		UserID: "user-1",
		Kind:   kind,
		Params: json.RawMessage(params),
		Cost:   domain.CostFor(kind),
	}
}

func TestSubmitValidatesRequiredParams(t *testing.T) {
	cases := []struct {
		name   string
		kind   domain.JobKind
		params string
		want   string
	}{
		{"image missing prompt", domain.JobKindImage, `{"size":"1024"}`, "prompt"},
		{"image empty prompt", domain.JobKindImage, `{"prompt":"   "}`, "prompt"},
		{"video missing source image", domain.JobKindVideo, `{"prompt":"pan left"}`, "source_image"},
		{"speech missing voice", domain.JobKindSpeech, `{"text":"hello"}`, "voice"},
		{"not an object", domain.JobKindImage, `["prompt"]`, "JSON object"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSubmitter(clientsFor(tc.kind, &fakeClient{}))
			_, err := s.Submit(context.Background(), submitRequest(tc.kind, tc.params))
			require.Error(t, err)
			assert.Equal(t, domain.ErrInvalidRequest, domain.GenerationErrorKind(err))
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSubmitAcceptsValidParams(t *testing.T) {
	client := &fakeClient{}
	s := NewSubmitter(clientsFor(domain.JobKindVideo, client))
	req := submitRequest(domain.JobKindVideo, `{"prompt":"pan left","source_image":"https://cdn.test/in.png"}`)

	handle, err := s.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, handle.ProviderJobID)
	assert.Equal(t, 1, client.submits)
}

func TestSubmitUnsupportedKind(t *testing.T) {
	s := NewSubmitter(clientsFor(domain.JobKindImage, &fakeClient{}))
	_, err := s.Submit(context.Background(), submitRequest(domain.JobKindSpeech, `{"text":"hi","voice":"alloy"}`))
	require.Error(t, err)
	assert.Equal(t, domain.ErrInvalidRequest, domain.GenerationErrorKind(err))
}

func TestSubmitClassifiesRejection(t *testing.T) {
	client := &fakeClient{submitErr: &provider.RejectedError{StatusCode: 400, Code: "InvalidParameter", Message: "bad aspect ratio"}}
	s := NewSubmitter(clientsFor(domain.JobKindImage, client))

	_, err := s.Submit(context.Background(), submitRequest(domain.JobKindImage, `{"prompt":"barn"}`))
	require.Error(t, err)

	var genErr *domain.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, domain.ErrSubmissionFailed, genErr.Kind)
	assert.False(t, genErr.Retryable)
	assert.Equal(t, "bad aspect ratio", genErr.Reason)
}

func TestSubmitClassifiesTransportFailure(t *testing.T) {
	client := &fakeClient{submitErr: errInjected("dial tcp: connection refused")}
	s := NewSubmitter(clientsFor(domain.JobKindImage, client))

	_, err := s.Submit(context.Background(), submitRequest(domain.JobKindImage, `{"prompt":"barn"}`))
	require.Error(t, err)

	var genErr *domain.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, domain.ErrSubmissionFailed, genErr.Kind)
	assert.True(t, genErr.Retryable)
}
