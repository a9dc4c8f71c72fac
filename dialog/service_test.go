package dialog

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowchat-io/flowchat/nlu"
	"github.com/flowchat-io/flowchat/store"
)

func stubStore(driver store.Driver) *store.Store {
	return store.New(driver)
}

// echoClassifier always answers with the same intent, concurrency-safe.
type echoClassifier struct {
	mu     sync.Mutex
	intent string
}

func (c *echoClassifier) Classify(context.Context, string) (*nlu.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &nlu.Result{Intent: c.intent, Ranking: map[string]float64{c.intent: 1}}, nil
}

func newTestService(t *testing.T, st *UserConversations) *Service {
	t.Helper()
	f := testFlowMap(t)
	controller, err := NewController(f, &echoClassifier{intent: "greet"}, testRegistry(t, f.Domain), "test")
	require.NoError(t, err)
	service, err := NewService(controller, st, 4)
	require.NoError(t, err)
	return service
}

func TestServiceHandleMessage(t *testing.T) {
	d := testDomain(t)
	driver := &memDriver{}
	conversations, err := NewUserConversations(8, d, stubStore(driver), "test")
	require.NoError(t, err)
	service := newTestService(t, conversations)

	out, err := service.HandleMessage(context.Background(), "u1", "Alice", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", out.Text)

	// Every turn appends one record.
	assert.Len(t, driver.records, 1)
	out, err = service.HandleMessage(context.Background(), "u1", "Alice", "hello again")
	require.NoError(t, err)
	assert.Equal(t, "hi there", out.Text)
	assert.Len(t, driver.records, 2)
}

func TestServicePersistenceFailureDoesNotFailTurn(t *testing.T) {
	d := testDomain(t)
	conversations, err := NewUserConversations(8, d, stubStore(&failingDriver{}), "test")
	require.NoError(t, err)
	service := newTestService(t, conversations)

	out, err := service.HandleMessage(context.Background(), "u1", "Alice", "hello")
	require.NoError(t, err, "the reply is already committed in memory")
	assert.Equal(t, "hi there", out.Text)
}

func TestServiceSerializesTurnsPerUser(t *testing.T) {
	d := testDomain(t)
	conversations, err := NewUserConversations(8, d, nil, "test")
	require.NoError(t, err)
	service := newTestService(t, conversations)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.HandleMessage(context.Background(), "u1", "Alice", "hello")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

// failingDriver rejects every write.
type failingDriver struct {
	memDriver
}

func (d *failingDriver) CreateConversationRecord(context.Context, *store.ConversationRecord) (*store.ConversationRecord, error) {
	return nil, errors.New("disk full")
}
