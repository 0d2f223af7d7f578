package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"newsboost-bot/internal/backoff"
	"newsboost-bot/internal/channel"
	"newsboost-bot/internal/media"
	"newsboost-bot/internal/posts"
)

// MockClient is a mock implementing channel.Client. calls records the order of operations.
type MockClient struct {
	mock.Mock
	calls []string
}

func (m *MockClient) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	m.calls = append(m.calls, "EditText")
	return m.Called(ctx, chatID, messageID, text).Error(0)
}

func (m *MockClient) EditCaption(ctx context.Context, chatID int64, messageID int, caption string) error {
	m.calls = append(m.calls, "EditCaption")
	return m.Called(ctx, chatID, messageID, caption).Error(0)
}

func (m *MockClient) EditMedia(ctx context.Context, chatID int64, messageID int, item media.Artifact, caption string) error {
	m.calls = append(m.calls, "EditMedia")
	return m.Called(ctx, chatID, messageID, item, caption).Error(0)
}

func (m *MockClient) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	m.calls = append(m.calls, "SendText")
	args := m.Called(ctx, chatID, text)
	return args.Int(0), args.Error(1)
}

func (m *MockClient) SendMedia(ctx context.Context, chatID int64, item media.Artifact, caption string) (int, error) {
	m.calls = append(m.calls, "SendMedia")
	args := m.Called(ctx, chatID, item, caption)
	return args.Int(0), args.Error(1)
}

func (m *MockClient) SendMediaGroup(ctx context.Context, chatID int64, items []media.Artifact, caption string) ([]int, error) {
	m.calls = append(m.calls, "SendMediaGroup")
	args := m.Called(ctx, chatID, items, caption)
	if ids, ok := args.Get(0).([]int); ok {
		return ids, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	m.calls = append(m.calls, "DeleteMessage")
	return m.Called(ctx, chatID, messageID).Error(0)
}

func (m *MockClient) DownloadMedia(ctx context.Context, ref posts.MediaRef, dst string) error {
	return m.Called(ctx, ref, dst).Error(0)
}

var (
	photo      = media.Artifact{Kind: posts.KindPhoto, FileID: "p"}
	marked     = media.Artifact{Kind: posts.KindPhoto, Path: "/tmp/wm.jpg", Transformed: true}
	permErr    = &channel.PlatformError{Method: "editMessageCaption", Code: 400, Description: "Bad Request: message can't be edited"}
	limitedErr = &backoff.RateLimitError{}
)

func newTestSelector(client channel.Client, cfg Config) *Selector {
	s := NewSelector(client, backoff.New(backoff.Config{MaxAttempts: 2, BaseDelay: time.Millisecond}), cfg)
	s.sleep = func(context.Context, time.Duration) error { return nil }
	return s
}

func TestChoose(t *testing.T) {
	s := newTestSelector(nil, Config{})
	assert.Equal(t, ModeEdit, s.Choose(Content{Text: "x"}))
	assert.Equal(t, ModeEdit, s.Choose(Content{Media: []media.Artifact{photo}}))
	assert.Equal(t, ModeRepostThenDelete, s.Choose(Content{Media: []media.Artifact{photo, photo}, Album: true}))

	s = newTestSelector(nil, Config{SingleMedia: ModeReplace})
	assert.Equal(t, ModeReplace, s.Choose(Content{Media: []media.Artifact{photo}}))
}

func TestDeliverTextEditsInPlace(t *testing.T) {
	client := new(MockClient)
	s := newTestSelector(client, Config{})
	client.On("EditText", mock.Anything, int64(-100), 5, "final").Return(nil).Once()

	res, err := s.Deliver(context.Background(), Content{ChatID: -100, SourceIDs: []int{5}, Text: "final"})
	require.NoError(t, err)
	assert.Equal(t, Result{Mode: ModeEdit, PublishedIDs: []int{5}, Edited: true}, res)
	client.AssertExpectations(t)
}

func TestDeliverNotModifiedIsSuccess(t *testing.T) {
	client := new(MockClient)
	s := newTestSelector(client, Config{})
	client.On("EditText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&channel.PlatformError{Code: 400, Description: "Bad Request: message is not modified"}).Once()

	res, err := s.Deliver(context.Background(), Content{ChatID: -100, SourceIDs: []int{5}, Text: "same"})
	require.NoError(t, err)
	assert.True(t, res.Edited)
	assert.Equal(t, []string{"EditText"}, client.calls)
}

func TestDeliverSingleMediaEdits(t *testing.T) {
	client := new(MockClient)
	s := newTestSelector(client, Config{})
	client.On("EditMedia", mock.Anything, int64(-100), 5, marked, "cap").Return(nil).Once()
	client.On("EditCaption", mock.Anything, int64(-100), 6, "cap").Return(nil).Once()

	_, err := s.Deliver(context.Background(), Content{ChatID: -100, SourceIDs: []int{5}, Text: "cap", Media: []media.Artifact{marked}})
	require.NoError(t, err)
	_, err = s.Deliver(context.Background(), Content{ChatID: -100, SourceIDs: []int{6}, Text: "cap", Media: []media.Artifact{photo}})
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestDeliverEditFailureFallsBackToRepostThenDelete(t *testing.T) {
	client := new(MockClient)
	s := newTestSelector(client, Config{})
	client.On("EditCaption", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(permErr).Once()
	client.On("SendMedia", mock.Anything, int64(-100), photo, "cap").Return(77, nil).Once()
	client.On("DeleteMessage", mock.Anything, int64(-100), 5).Return(nil).Once()

	res, err := s.Deliver(context.Background(), Content{ChatID: -100, SourceIDs: []int{5}, Text: "cap", Media: []media.Artifact{photo}})
	require.NoError(t, err)
	assert.Equal(t, ModeRepostThenDelete, res.Mode)
	assert.Equal(t, []int{77}, res.PublishedIDs)
	assert.Equal(t, []string{"EditCaption", "SendMedia", "DeleteMessage"}, client.calls)
}

func TestDeliverRateLimitExhaustedDoesNotFallBack(t *testing.T) {
	client := new(MockClient)
	s := newTestSelector(client, Config{})
	client.On("EditCaption", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(limitedErr).Times(2)

	_, err := s.Deliver(context.Background(), Content{ChatID: -100, SourceIDs: []int{5}, Text: "cap", Media: []media.Artifact{photo}})
	require.Error(t, err)
	assert.True(t, backoff.IsRateLimited(err))
	assert.Equal(t, []string{"EditCaption", "EditCaption"}, client.calls)
}

func TestDeliverSendFailureKeepsOriginal(t *testing.T) {
	client := new(MockClient)
	s := newTestSelector(client, Config{SingleMedia: ModeRepostThenDelete})
	client.On("SendMedia", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(0, errors.New("boom")).Once()

	_, err := s.Deliver(context.Background(), Content{ChatID: -100, SourceIDs: []int{5}, Text: "cap", Media: []media.Artifact{photo}})
	require.Error(t, err)
	client.AssertNotCalled(t, "DeleteMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliverAlbumDeletesOnlyAfterSuccess(t *testing.T) {
	client := new(MockClient)
	s := newTestSelector(client, Config{})
	items := []media.Artifact{photo, marked}
	client.On("SendMediaGroup", mock.Anything, int64(-100), items, "cap").Return([]int{30, 31}, nil).Once()
	client.On("DeleteMessage", mock.Anything, int64(-100), 1).Return(nil).Once()
	client.On("DeleteMessage", mock.Anything, int64(-100), 2).
		Return(&channel.PlatformError{Code: 400, Description: "Bad Request: message to delete not found"}).Once()

	res, err := s.Deliver(context.Background(), Content{ChatID: -100, SourceIDs: []int{1, 2}, Text: "cap", Media: items, Album: true})
	require.NoError(t, err)
	assert.Equal(t, []int{30, 31}, res.PublishedIDs)
	assert.Empty(t, res.UndeletedIDs)
	assert.Equal(t, []string{"SendMediaGroup", "DeleteMessage", "DeleteMessage"}, client.calls)
}

func TestDeliverAlbumFailureDeletesNothing(t *testing.T) {
	client := new(MockClient)
	s := newTestSelector(client, Config{})
	client.On("SendMediaGroup", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, permErr).Once()

	_, err := s.Deliver(context.Background(), Content{ChatID: -100, SourceIDs: []int{1, 2}, Media: []media.Artifact{photo, photo}, Album: true})
	require.Error(t, err)
	assert.Equal(t, []string{"SendMediaGroup"}, client.calls)
}

func TestDeliverSingleItemAlbumUsesSendMedia(t *testing.T) {
	client := new(MockClient)
	s := newTestSelector(client, Config{})
	client.On("SendMedia", mock.Anything, int64(-100), photo, "cap").Return(40, nil).Once()
	client.On("DeleteMessage", mock.Anything, int64(-100), 3).Return(nil).Once()

	res, err := s.Deliver(context.Background(), Content{ChatID: -100, SourceIDs: []int{3}, Text: "cap", Media: []media.Artifact{photo}, Album: true})
	require.NoError(t, err)
	assert.Equal(t, []int{40}, res.PublishedIDs)
	assert.Equal(t, []string{"SendMedia", "DeleteMessage"}, client.calls)
	client.AssertNotCalled(t, "SendMediaGroup", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliverReportsPublishedBeforeDeleting(t *testing.T) {
	client := new(MockClient)
	s := newTestSelector(client, Config{})
	items := []media.Artifact{photo, photo}
	client.On("SendMediaGroup", mock.Anything, int64(-100), items, "cap").Return([]int{50, 51}, nil).Once()
	client.On("DeleteMessage", mock.Anything, int64(-100), mock.Anything).Return(nil).Twice()

	var reported []int
	callsAtReport := -1
	c := Content{ChatID: -100, SourceIDs: []int{1, 2}, Text: "cap", Media: items, Album: true,
		OnPublished: func(_ context.Context, ids []int) {
			reported = ids
			callsAtReport = len(client.calls)
		}}
	_, err := s.Deliver(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, []int{50, 51}, reported)
	assert.Equal(t, 1, callsAtReport, "ids must be reported before any delete")
}

func TestDeliverReplaceReportsPublished(t *testing.T) {
	client := new(MockClient)
	s := newTestSelector(client, Config{SingleMedia: ModeReplace})
	client.On("DeleteMessage", mock.Anything, int64(-100), 5).Return(nil).Once()
	client.On("SendMedia", mock.Anything, int64(-100), photo, "cap").Return(8, nil).Once()

	var reported []int
	c := Content{ChatID: -100, SourceIDs: []int{5}, Text: "cap", Media: []media.Artifact{photo},
		OnPublished: func(_ context.Context, ids []int) { reported = ids }}
	_, err := s.Deliver(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, []int{8}, reported)
}

func TestDeliverEditDoesNotReportPublished(t *testing.T) {
	client := new(MockClient)
	s := newTestSelector(client, Config{})
	client.On("EditText", mock.Anything, int64(-100), 5, "hi").Return(nil).Once()

	called := false
	c := Content{ChatID: -100, SourceIDs: []int{5}, Text: "hi",
		OnPublished: func(context.Context, []int) { called = true }}
	_, err := s.Deliver(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, called)
}

func TestDeliverReplaceAbortsWhenDeleteFails(t *testing.T) {
	client := new(MockClient)
	s := newTestSelector(client, Config{SingleMedia: ModeReplace})
	client.On("DeleteMessage", mock.Anything, mock.Anything, mock.Anything).Return(permErr).Once()

	_, err := s.Deliver(context.Background(), Content{ChatID: -100, SourceIDs: []int{5}, Media: []media.Artifact{photo}})
	assert.ErrorIs(t, err, ErrDeleteFailed)
	client.AssertNotCalled(t, "SendMedia", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliverReplaceDeletesThenSends(t *testing.T) {
	client := new(MockClient)
	s := newTestSelector(client, Config{SingleMedia: ModeReplace})
	client.On("DeleteMessage", mock.Anything, int64(-100), 5).Return(nil).Once()
	client.On("SendMedia", mock.Anything, int64(-100), photo, "cap").Return(8, nil).Once()

	res, err := s.Deliver(context.Background(), Content{ChatID: -100, SourceIDs: []int{5}, Text: "cap", Media: []media.Artifact{photo}})
	require.NoError(t, err)
	assert.Equal(t, []int{8}, res.PublishedIDs)
	assert.Equal(t, []string{"DeleteMessage", "SendMedia"}, client.calls)
}

func TestRepostDelayWithinBounds(t *testing.T) {
	client := new(MockClient)
	s := newTestSelector(client, Config{SingleMedia: ModeRepostThenDelete, RepostDelayMin: 3 * time.Second, RepostDelayMax: 6 * time.Second})
	var slept time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	}
	client.On("SendMedia", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(9, nil).Once()
	client.On("DeleteMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	_, err := s.Deliver(context.Background(), Content{ChatID: -1, SourceIDs: []int{1}, Media: []media.Artifact{photo}})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, slept, 3*time.Second)
	assert.Less(t, slept, 6*time.Second)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("repost")
	require.NoError(t, err)
	assert.Equal(t, ModeRepostThenDelete, m)
	_, err = ParseMode("teleport")
	assert.Error(t, err)
}
