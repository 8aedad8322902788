package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgit123/deltaneutral-ftp-s3/internal/remote"
	"github.com/pkgit123/deltaneutral-ftp-s3/internal/secrets"
)

var testCreds = secrets.Credentials{Host: "ftp.deltaneutral.example", Username: "trader", Password: "hunter2"}

func dailyFeed(t *testing.T) *memSource {
	return newMemSource(map[string][]byte{
		"L2_20200101.zip": zipArchive(t, member{name: "options_20200101.csv", body: "AAPL,300\n"}),
		"L2_20200102.zip": zipArchive(t, member{name: "options_20200102.csv", body: "AAPL,301\n"}),
		"L2_2020_January.zip": zipArchive(t,
			member{name: "options_2020_January.csv", body: "monthly"},
		),
	}, "L2_20200101.zip", "L2_20200102.zip", "L2_2020_January.zip")
}

func TestOrchestratorRun(t *testing.T) {
	cfg := testConfig(t)
	store := newMemStore()
	src := dailyFeed(t)
	dialer := &fakeDialer{src: src}
	provider := &fakeProvider{creds: testCreds}

	report, err := NewOrchestrator(cfg, provider, dialer, store).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{cfg.SecretID}, provider.ids)
	assert.Equal(t, testCreds, dialer.creds)
	assert.True(t, src.closed)

	require.NotNil(t, report.Fetch)
	assert.Equal(t, []string{"L2_20200101.zip", "L2_20200102.zip"}, report.Fetch.Transferred)
	require.NotNil(t, report.Expand)
	assert.Equal(t, []string{"L2_20200101.zip", "L2_20200102.zip"}, report.Expand.Expanded)

	published, err := store.ListNames(context.Background(), testPublish)
	require.NoError(t, err)
	assert.Equal(t, []string{"options_20200101.csv", "options_20200102.csv"}, published)
}

func TestOrchestratorRunIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	store := newMemStore()
	dialer := &fakeDialer{src: dailyFeed(t)}
	o := NewOrchestrator(cfg, &fakeProvider{creds: testCreds}, dialer, store)

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	uploads := store.uploadCount()

	second, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, second.Fetch.Missing)
	assert.Empty(t, second.Fetch.Transferred)
	assert.Empty(t, second.Expand.Pending)
	assert.Empty(t, second.Expand.Expanded)
	assert.Equal(t, uploads, store.uploadCount())
}

func TestOrchestratorSecretFailureStopsBeforeDial(t *testing.T) {
	cfg := testConfig(t)
	store := newMemStore()
	dialer := &fakeDialer{src: dailyFeed(t)}
	provider := &fakeProvider{err: &secrets.AccessError{
		SecretID: cfg.SecretID,
		Reason:   secrets.ReasonNotFound,
		Err:      errors.New("ResourceNotFoundException"),
	}}

	report, err := NewOrchestrator(cfg, provider, dialer, store).Run(context.Background())

	var accessErr *secrets.AccessError
	require.ErrorAs(t, err, &accessErr)
	assert.Equal(t, secrets.ReasonNotFound, accessErr.Reason)
	assert.Zero(t, dialer.dials)
	assert.Nil(t, report.Fetch)
	assert.Nil(t, report.Expand)
	assert.Zero(t, store.uploadCount())
}

func TestOrchestratorConnectionFailure(t *testing.T) {
	cfg := testConfig(t)
	dialer := &fakeDialer{err: &remote.AuthError{Host: testCreds.Host, User: testCreds.Username, Err: errors.New("530 login incorrect")}}

	_, err := NewOrchestrator(cfg, &fakeProvider{creds: testCreds}, dialer, newMemStore()).Run(context.Background())

	var authErr *remote.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, err.Error(), "connect to ftp")
}

func TestOrchestratorFetchFailureSkipsExpand(t *testing.T) {
	cfg := testConfig(t)
	store := newMemStore()
	// already staged and not yet expanded
	store.put(testStaging+"L2_20191231.zip", zipArchive(t, member{name: "options_20191231.csv", body: "x"}))

	src := dailyFeed(t)
	src.retrieveErr["L2_20200102.zip"] = errors.New("connection reset by peer")

	report, err := NewOrchestrator(cfg, &fakeProvider{creds: testCreds}, &fakeDialer{src: src}, store).Run(context.Background())

	var transferErr *TransferError
	require.ErrorAs(t, err, &transferErr)
	require.NotNil(t, report.Fetch)
	assert.Equal(t, []string{"L2_20200101.zip"}, report.Fetch.Transferred)
	assert.Nil(t, report.Expand)
	assert.True(t, src.closed)

	_, ok := store.get(testPublish + "options_20191231.csv")
	assert.False(t, ok)
}

func TestOrchestratorRunExpandAlone(t *testing.T) {
	cfg := testConfig(t)
	store := newMemStore()
	store.put(testStaging+"L2_20200101.zip", zipArchive(t, member{name: "options_20200101.csv", body: "x"}))
	dialer := &fakeDialer{}

	result, err := NewOrchestrator(cfg, &fakeProvider{creds: testCreds}, dialer, store).RunExpand(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"L2_20200101.zip"}, result.Expanded)
	assert.Zero(t, dialer.dials)
}

func TestOrchestratorPlan(t *testing.T) {
	cfg := testConfig(t)
	store := newMemStore()
	store.put(testStaging+"L2_20200101.zip", []byte("staged"))
	store.put(testStaging+"L2_20191231.zip", []byte("staged"))
	store.put(testPublish+"options_20191231.csv", []byte("published"))

	tracker := &fakeTracker{}
	o := NewOrchestrator(cfg, &fakeProvider{creds: testCreds}, &fakeDialer{src: dailyFeed(t)}, store, WithTracker(tracker))

	plan, err := o.Plan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"L2_20200102.zip"}, plan.Transfers)
	assert.Equal(t, []string{"L2_20200101.zip", "L2_20200102.zip"}, plan.Expansions)

	assert.Zero(t, store.uploadCount())
	assert.Empty(t, tracker.runs)
}

func TestOrchestratorTracksBothStages(t *testing.T) {
	cfg := testConfig(t)
	tracker := &fakeTracker{}
	o := NewOrchestrator(cfg, &fakeProvider{creds: testCreds}, &fakeDialer{src: dailyFeed(t)}, newMemStore(), WithTracker(tracker))

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, tracker.finished, 2)
	assert.Equal(t, StageFetch, tracker.finished[0].Stage)
	assert.Equal(t, StageExpand, tracker.finished[1].Stage)
	for _, run := range tracker.finished {
		assert.Equal(t, StatusCompleted, run.Status)
		assert.Equal(t, 2, run.ProcessedFiles)
		assert.NotNil(t, run.CompletedAt)
	}
}
