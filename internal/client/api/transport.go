package api

import "net/http"

//go:generate moq -out transport_mock.go . Transport

// Transport выполняет HTTP запрос. *http.Client удовлетворяет интерфейсу.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}
