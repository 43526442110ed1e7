// Package common — errors.go определяет ошибки, общие для ядра репутации и адаптеров.
// Отказы по политике (самонаграда, бот, лимиты) возвращаются ядром как данные,
// а эти значения нужны адаптерам, чтобы сопоставить причину через errors.Is.
package common

import "errors"

// Ошибки политики начисления репутации
var (
	// ErrInvalidTarget — получатель не может принять репутацию (сам себе или бот)
	ErrInvalidTarget = errors.New("недопустимый получатель репутации")
	// ErrRateLimitExceeded — даритель исчерпал лимит в скользящем окне
	ErrRateLimitExceeded = errors.New("лимит выдачи репутации исчерпан")
	// ErrInvalidAmount — нулевое количество очков
	ErrInvalidAmount = errors.New("количество очков не может быть нулевым")
	// ErrUnknownEmoji — реакция не входит в таблицу очков
	ErrUnknownEmoji = errors.New("эмодзи не приносит репутацию")
)

// Ошибки хранилища
var (
	// ErrStoreUnavailable — хранилище не ответило или вернуло ошибку
	ErrStoreUnavailable = errors.New("хранилище репутации недоступно")
)
