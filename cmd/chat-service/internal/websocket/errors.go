package websocket

import "errors"

// ErrSendBufferFull 客户端发送缓冲已满
var ErrSendBufferFull = errors.New("client send buffer is full")
