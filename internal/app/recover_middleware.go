package app

import (
	"log"
	"runtime/debug"
	"strconv"

	tele "gopkg.in/telebot.v4"
)

// RecoverMiddleware гасит паники в хендлерах, чтобы один кривой апдейт
// не ронял поллер. В лог уходит контекст: чат, пользователь, начало текста.
func RecoverMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return guardHandler(next)
	}
}

func guardHandler(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("💥 PANIC [handler]%s: %v\n%s", updateOrigin(c), r, string(debug.Stack()))
			}
		}()
		return next(c)
	}
}

func updateOrigin(c tele.Context) string {
	if c == nil {
		return ""
	}
	origin := ""
	if chat := c.Chat(); chat != nil {
		origin += " чат " + strconv.FormatInt(chat.ID, 10)
	}
	if sender := c.Sender(); sender != nil {
		origin += " от " + strconv.FormatInt(sender.ID, 10)
	}
	if msg := c.Message(); msg != nil && msg.Text != "" {
		origin += " «" + shorten(msg.Text, 40) + "»"
	}
	return origin
}
