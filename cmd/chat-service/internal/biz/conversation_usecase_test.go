package biz

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"chatbackend/cmd/chat-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type conversationFixture struct {
	conversationRepo *fakeConversationRepo
	messageRepo      *fakeMessageRepo
	cache            *fakeTranscriptCache
	usecase          *ConversationUsecase
}

func newConversationFixture(t *testing.T) *conversationFixture {
	t.Helper()

	conversationRepo := newFakeConversationRepo()
	messageRepo := newFakeMessageRepo()
	cache := newFakeTranscriptCache()
	usecase := NewConversationUsecase(conversationRepo, messageRepo, cache, runeCounter{}, t.TempDir(), log.DefaultLogger)

	return &conversationFixture{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		cache:            cache,
		usecase:          usecase,
	}
}

func TestStartConversation(t *testing.T) {
	f := newConversationFixture(t)

	conversation, err := f.usecase.StartConversation(context.Background(), "tenant-1", "user-1")

	require.NoError(t, err)
	assert.NotEmpty(t, conversation.ID)
	assert.Equal(t, "user-1", conversation.UserID)
	assert.Equal(t, domain.StatusActive, conversation.Status)
	assert.Contains(t, f.conversationRepo.conversations, conversation.ID)
}

func TestResetConversation_ClearsMessagesAndCache(t *testing.T) {
	f := newConversationFixture(t)
	conversation, err := f.usecase.StartConversation(context.Background(), "tenant-1", "user-1")
	require.NoError(t, err)

	msg := domain.NewMessage(conversation.ID, domain.RoleUser, "hello")
	msg.SetTokens(5)
	require.NoError(t, f.messageRepo.CreateMessage(context.Background(), msg))
	transcript := domain.NewTranscript(conversation.ID)
	transcript.Append(msg)
	require.NoError(t, f.cache.SetTranscript(context.Background(), transcript, 0))
	conversation.SyncFromTranscript(transcript)

	require.NoError(t, f.usecase.ResetConversation(context.Background(), conversation.ID, "user-1"))

	// 消息、缓存、派生字段全部清空，对话本身保留
	assert.Empty(t, f.messageRepo.messages[conversation.ID])
	assert.Nil(t, f.cache.transcripts[conversation.ID])
	assert.Equal(t, 0, conversation.MessageCount)
	assert.Equal(t, 0, conversation.TokenTotal)
	assert.Empty(t, conversation.ConversationText)
	assert.Contains(t, f.conversationRepo.conversations, conversation.ID)
}

func TestResetConversation_RejectsForeignUser(t *testing.T) {
	f := newConversationFixture(t)
	conversation, err := f.usecase.StartConversation(context.Background(), "tenant-1", "user-1")
	require.NoError(t, err)

	err = f.usecase.ResetConversation(context.Background(), conversation.ID, "intruder")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAddFewShotExample_AppendsPair(t *testing.T) {
	f := newConversationFixture(t)
	conversation, err := f.usecase.StartConversation(context.Background(), "tenant-1", "user-1")
	require.NoError(t, err)

	err = f.usecase.AddFewShotExample(context.Background(), conversation.ID, "user-1",
		"What is the capital of France?", "The capital of France is Paris.")
	require.NoError(t, err)

	stored := f.messageRepo.messages[conversation.ID]
	require.Len(t, stored, 2)
	assert.Equal(t, domain.RoleUser, stored[0].Role)
	assert.Equal(t, domain.RoleAssistant, stored[1].Role)

	// 示例计入派生字段，缓存失效等待重建
	assert.Equal(t, 2, conversation.MessageCount)
	assert.Nil(t, f.cache.transcripts[conversation.ID])
}

func TestExportConversation_WritesSnapshot(t *testing.T) {
	f := newConversationFixture(t)
	conversation, err := f.usecase.StartConversation(context.Background(), "tenant-1", "user-1")
	require.NoError(t, err)

	msg := domain.NewMessage(conversation.ID, domain.RoleUser, "remember this")
	require.NoError(t, f.messageRepo.CreateMessage(context.Background(), msg))

	path, err := f.usecase.ExportConversation(context.Background(), conversation.ID, "user-1")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var export conversationExport
	require.NoError(t, json.Unmarshal(data, &export))
	assert.Equal(t, conversation.ID, export.ConversationID)
	assert.Equal(t, "user-1", export.UserID)
	require.Len(t, export.Messages, 1)
	assert.Equal(t, "remember this", export.Messages[0].Content)
}

func TestAnalyzeUpload_Validation(t *testing.T) {
	analyzer := testAnalyzer(&MockCompletionClient{}, 10)
	usecase := NewFileUsecase(analyzer, 100, log.DefaultLogger)

	// 扩展名白名单
	_, err := usecase.AnalyzeUpload(context.Background(), "malware.exe", 10, []byte("data"))
	assert.ErrorIs(t, err, domain.ErrFileTypeNotAllowed)

	// 大小限制
	_, err = usecase.AnalyzeUpload(context.Background(), "notes.txt", 101, make([]byte, 101))
	assert.ErrorIs(t, err, domain.ErrFileTooLarge)

	// 非 UTF-8 内容
	_, err = usecase.AnalyzeUpload(context.Background(), "notes.txt", 4, []byte{0xff, 0xfe, 0xfd, 0xfc})
	assert.ErrorIs(t, err, domain.ErrFileTypeNotAllowed)
}

func TestAnalyzeUpload_ReturnsReport(t *testing.T) {
	analyzer := testAnalyzer(&MockCompletionClient{}, 10)
	usecase := NewFileUsecase(analyzer, 1024, log.DefaultLogger)

	report, err := usecase.AnalyzeUpload(context.Background(), "notes.md", 9, []byte("aaaa\nbbbb"))

	require.NoError(t, err)
	assert.Contains(t, report, "Analysis for Chunk 1")
	assert.Contains(t, report, "analysis result")
}
