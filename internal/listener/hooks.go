package listener

import "context"

// 以下三个函数是预留的请求/应答扩展点。
// 帧格式尚未定义，它们不做任何事，轮询循环也不会调用。

// Acknowledge 确认设备发来的请求码
func Acknowledge(requestCode string) {}

// HandleRequest 处理请求体（预留给异步的HTTP调用）
func HandleRequest(ctx context.Context, requestBody []byte) error {
	return nil
}

// ReturnResponse 把应答写回串口
func ReturnResponse(responseBody []byte) {}
