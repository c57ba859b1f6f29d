package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/voxassist/internal/assistant"
	"github.com/normanking/voxassist/internal/dispatch"
	"github.com/normanking/voxassist/internal/intent"
	"github.com/normanking/voxassist/internal/voice"
)

func newSet(t *testing.T) *Set {
	t.Helper()
	return NewSet(nil, nil, zerolog.Nop())
}

func req(in intent.Intent, entities map[string]string) dispatch.Request {
	return dispatch.Request{
		Intent:    in,
		Entities:  entities,
		UserID:    "user-1",
		SessionID: "session-1",
	}
}

func TestRegisterAllCoversEveryIntent(t *testing.T) {
	d := dispatch.NewDispatcher(nil, zerolog.Nop())
	newSet(t).RegisterAll(d)
	assert.NoError(t, d.Validate())
}

func TestPlayMusic(t *testing.T) {
	s := newSet(t)

	res, err := s.playMusic(context.Background(), req(intent.IntentPlayMusic,
		map[string]string{intent.EntityMusicQuery: "romantic telugu songs"}))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Playing romantic telugu songs.", res.Message)
}

func TestAddAndShowTasks(t *testing.T) {
	s := newSet(t)

	res, err := s.showTasks(context.Background(), req(intent.IntentShowTasks, nil))
	require.NoError(t, err)
	assert.Equal(t, "You have no tasks.", res.Message)

	res, err = s.addTask(context.Background(), req(intent.IntentAddTask,
		map[string]string{intent.EntityTaskText: "buy milk"}))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Message, "buy milk")

	res, err = s.addTask(context.Background(), req(intent.IntentAddTask,
		map[string]string{intent.EntityTaskText: "file taxes", intent.EntityTime: "tomorrow"}))
	require.NoError(t, err)
	assert.Contains(t, res.Message, "tomorrow")

	res, err = s.showTasks(context.Background(), req(intent.IntentShowTasks, nil))
	require.NoError(t, err)
	assert.Contains(t, res.Message, "2 tasks")
	assert.Contains(t, res.Message, "buy milk")
	assert.Contains(t, res.Message, "file taxes")
}

func TestTasksIsolatedPerUser(t *testing.T) {
	s := newSet(t)

	s.tasks.Add("user-1", "buy milk", "")
	otherReq := req(intent.IntentShowTasks, nil)
	otherReq.UserID = "user-2"

	res, err := s.showTasks(context.Background(), otherReq)
	require.NoError(t, err)
	assert.Equal(t, "You have no tasks.", res.Message)
}

func TestAddAndShowReminders(t *testing.T) {
	s := newSet(t)

	res, err := s.addReminder(context.Background(), req(intent.IntentAddReminder,
		map[string]string{intent.EntityReminderText: "call mom", intent.EntityTime: "5pm"}))
	require.NoError(t, err)
	assert.Equal(t, "I'll remind you to call mom at 5pm.", res.Message)

	res, err = s.showReminders(context.Background(), req(intent.IntentShowReminders, nil))
	require.NoError(t, err)
	assert.Contains(t, res.Message, "1 reminder")
	assert.Contains(t, res.Message, "call mom at 5pm")
}

func TestNavigate(t *testing.T) {
	s := newSet(t)

	res, err := s.navigate(context.Background(), req(intent.IntentNavigate,
		map[string]string{intent.EntityNavigationTarget: "settings"}))
	require.NoError(t, err)
	assert.Equal(t, "Opening settings.", res.Message)
}

func TestGeneralQueryWithAssistant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/answer/stream", r.URL.Path)
		var body struct {
			Question string `json:"question"`
			Context  string `json:"context"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "what is the weather", body.Question)
		assert.Contains(t, body.Context, "play some jazz")

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: delta\ndata: Sunny \n\n")
		fmt.Fprint(w, "event: delta\ndata: all day.\n\n")
		fmt.Fprint(w, "event: done\ndata: \n\n")
	}))
	t.Cleanup(server.Close)

	history := voice.NewHistory(voice.DefaultHistoryConfig())
	history.Add("play some jazz", "Playing jazz.", "play_music")

	client := assistant.NewClient(&assistant.ClientConfig{ServerURL: server.URL}, zerolog.Nop())
	s := NewSet(client, history, zerolog.Nop())

	r := req(intent.IntentGeneralQuery, nil)
	r.Text = "what is the weather"
	res, err := s.generalQuery(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "Sunny all day.", res.Message)
}

func TestGeneralQueryWithoutAssistant(t *testing.T) {
	s := newSet(t)

	r := req(intent.IntentGeneralQuery, nil)
	r.Text = "what is the weather"
	res, err := s.generalQuery(context.Background(), r)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.Message)
}

func TestGeneralQueryAssistantDown(t *testing.T) {
	client := assistant.NewClient(&assistant.ClientConfig{ServerURL: "http://127.0.0.1:1"}, zerolog.Nop())
	s := NewSet(client, nil, zerolog.Nop())

	r := req(intent.IntentGeneralQuery, nil)
	r.Text = "what is the weather"
	res, err := s.generalQuery(context.Background(), r)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, assistant.ErrUnavailable)
}
