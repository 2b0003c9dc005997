package domain

import "errors"

var (
	// ErrConversationNotFound 对话未找到
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrConversationDeleted 对话已删除
	ErrConversationDeleted = errors.New("conversation is deleted")

	// ErrUnauthorized 未授权
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidMessageRole 无效的消息角色
	ErrInvalidMessageRole = errors.New("invalid message role")

	// ErrMessageTooLarge 单条消息的 Token 数超过可用预算，
	// 预算管理器显式失败而不是返回超限转录
	ErrMessageTooLarge = errors.New("message exceeds token budget")

	// ErrCompletionUnavailable 上游模型调用在重试耗尽后仍失败
	ErrCompletionUnavailable = errors.New("completion service unavailable")

	// ErrMalformedCompletion 上游返回了无法解析的响应
	ErrMalformedCompletion = errors.New("malformed completion response")

	// ErrEmptyDocument 上传文档为空
	ErrEmptyDocument = errors.New("document is empty")

	// ErrFileTypeNotAllowed 文件扩展名不在白名单内
	ErrFileTypeNotAllowed = errors.New("unsupported file type")

	// ErrFileTooLarge 文件超过大小上限
	ErrFileTooLarge = errors.New("file too large")
)
