package generate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genserver/internal/domain"
	"genserver/internal/provider"
)

func testPoller(client *fakeClient, cfg PollConfig) *Poller {
	return NewPoller(clientsFor(domain.JobKindImage, client), cfg, discardLogger())
}

func imageHandle() domain.JobHandle {
	return domain.JobHandle{ProviderJobID: "job-1", Kind: domain.JobKindImage}
}

func TestPollReturnsSuccessWithLocators(t *testing.T) {
	client := &fakeClient{script: []domain.StatusReport{
		{State: domain.JobStateQueued},
		{State: domain.JobStateRunning},
		{State: domain.JobStateSucceeded, ResultURLs: []string{"https://provider.test/out.png"}},
	}}
	p := testPoller(client, PollConfig{BaseInterval: time.Millisecond, MaxWait: time.Second})

	report, err := p.Wait(context.Background(), imageHandle())
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateSucceeded, report.State)
	assert.Equal(t, []string{"https://provider.test/out.png"}, report.ResultURLs)
	assert.Equal(t, 3, client.statusCalls())
}

func TestPollReturnsProviderFailureReason(t *testing.T) {
	client := &fakeClient{script: []domain.StatusReport{
		{State: domain.JobStateRunning},
		{State: domain.JobStateFailed, Reason: "nsfw filter"},
	}}
	p := testPoller(client, PollConfig{BaseInterval: time.Millisecond, MaxWait: time.Second})

	report, err := p.Wait(context.Background(), imageHandle())
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateFailed, report.State)
	assert.Equal(t, "nsfw filter", report.Reason)
}

func TestPollTimesOutAgainstStuckProvider(t *testing.T) {
	client := &fakeClient{} // always running
	ceiling := 50 * time.Millisecond
	p := testPoller(client, PollConfig{BaseInterval: time.Millisecond, MaxInterval: 4 * time.Millisecond, MaxWait: ceiling})

	start := time.Now()
	report, err := p.Wait(context.Background(), imageHandle())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, domain.JobStateTimedOut, report.State)
	assert.Greater(t, client.statusCalls(), 1)
	// Generous slack: the point is that the loop exits near the ceiling
	// instead of hanging.
	assert.Less(t, elapsed, ceiling+time.Second)
}

func TestPollThrottledKeepsJobAlive(t *testing.T) {
	client := &fakeClient{script: []domain.StatusReport{
		{State: domain.JobStateThrottled},
		{State: domain.JobStateThrottled},
		{State: domain.JobStateSucceeded, ResultURLs: []string{"https://provider.test/out.png"}},
	}}
	p := testPoller(client, PollConfig{BaseInterval: time.Millisecond, ThrottleMultiplier: 3, MaxWait: time.Second})

	report, err := p.Wait(context.Background(), imageHandle())
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateSucceeded, report.State)
}

func TestPollCancellationStopsPromptly(t *testing.T) {
	client := &fakeClient{} // always running
	p := testPoller(client, PollConfig{BaseInterval: 10 * time.Millisecond, MaxWait: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var err error
	go func() {
		_, err = p.Wait(ctx, imageHandle())
		close(done)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poll loop did not stop after cancellation")
	}
	require.ErrorIs(t, err, context.Canceled)
}

func TestPollTransientErrorsAreRetried(t *testing.T) {
	client := &fakeClient{
		statusErrs: []error{errInjected("conn reset"), errInjected("conn reset")},
		script: []domain.StatusReport{
			{}, {}, // consumed by the error slots
			{State: domain.JobStateSucceeded, ResultURLs: []string{"https://provider.test/out.png"}},
		},
	}
	p := testPoller(client, PollConfig{BaseInterval: time.Millisecond, MaxWait: time.Second})

	report, err := p.Wait(context.Background(), imageHandle())
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateSucceeded, report.State)
}

func TestPollGivesUpAfterConsecutiveErrors(t *testing.T) {
	client := &fakeClient{statusErrs: []error{
		errInjected("down"), errInjected("down"), errInjected("down"),
	}}
	p := testPoller(client, PollConfig{BaseInterval: time.Millisecond, MaxWait: time.Second, MaxConsecutiveErrors: 3})

	report, err := p.Wait(context.Background(), imageHandle())
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateFailed, report.State)
	assert.Contains(t, report.Reason, "provider unreachable")
}

func TestPollRejectionIsTerminal(t *testing.T) {
	client := &fakeClient{statusErrs: []error{
		&provider.RejectedError{StatusCode: 404, Message: "unknown job"},
	}}
	p := testPoller(client, PollConfig{BaseInterval: time.Millisecond, MaxWait: time.Second})

	report, err := p.Wait(context.Background(), imageHandle())
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateFailed, report.State)
	assert.Contains(t, report.Reason, "unknown job")
	assert.Equal(t, 1, client.statusCalls())
}

func TestNextIntervalDoublesAndCaps(t *testing.T) {
	max := 8 * time.Millisecond
	assert.Equal(t, 4*time.Millisecond, nextInterval(2*time.Millisecond, max))
	assert.Equal(t, 8*time.Millisecond, nextInterval(4*time.Millisecond, max))
	assert.Equal(t, max, nextInterval(8*time.Millisecond, max))
}
