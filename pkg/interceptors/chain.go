package interceptors

import (
	"connectrpc.com/connect"
)

// HandlerOptions собирает опции Connect-обработчика: интерсепторы и
// дополнительные опции (кодек, лимиты сообщений)
func HandlerOptions(cfg *ServerConfig, extra ...connect.HandlerOption) []connect.HandlerOption {
	opts := make([]connect.HandlerOption, 0, len(extra)+1)
	opts = append(opts, connect.WithInterceptors(UnaryServerInterceptors(cfg)...))
	return append(opts, extra...)
}
