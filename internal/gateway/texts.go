package gateway

import (
	"errors"
	"fmt"

	"github.com/solacebot/solace/internal/engine"
)

// User-facing texts. Replies are plain text; the platform renders no
// markup.
const (
	greetingText = "👋 Привет!\n\n" +
		"Я — помощник для трейдеров.\n" +
		"Бывает сложно... тревога, страх, выгорание.\n" +
		"Я рядом, чтобы поддержать 💬\n\n" +
		"Вот что я умею:\n" +
		"🟢 Начать — начать новый разговор\n" +
		"🙏 Спасибо — завершить беседу\n" +
		"🔁 Продолжить — если не знаешь, что сказать, я сам подскажу вопрос\n\n" +
		"👇 Нажми «Начать», и я задам первый вопрос"

	helpText = "ℹ️ Я здесь, чтобы поддержать тебя, когда трудно.\n\n" +
		"🟢 Начать — начать новый разговор\n" +
		"🙏 Спасибо — закончить беседу\n" +
		"🔁 Продолжить — если не знаешь, что сказать, я помогу 💛"

	startPromptText = "📝 Расскажи, что у тебя сейчас на душе.\n\n" +
		"Можешь коротко описать, что беспокоит:\n" +
		"• тревога перед сделкой\n" +
		"• чувство вины после потерь\n" +
		"• страх снова начать торговать\n" +
		"• выгорание или усталость\n\n" +
		"Пиши как чувствуешь — можно простыми словами. Я здесь, чтобы поддержать тебя 💛"

	thanksText = "✨ Рад был быть рядом. Помни — ты не один.\n" +
		"Если снова понадобится поддержка, просто напиши. Я рядом 💬"

	nothingToContinueText = "Пока что у нас не было беседы. Нажми «Начать», чтобы начать с чистого листа 😊"

	authUnavailableText = "⚠️ Не удалось подключиться к GigaChat."

	genericErrorText = "⚠️ Что-то пошло не так. Попробуй написать ещё раз чуть позже."
)

// errorText converts an engine error to the short user-visible notice.
func errorText(err error) string {
	if errors.Is(err, engine.ErrAuthUnavailable) {
		return authUnavailableText
	}
	if errors.Is(err, engine.ErrNothingToContinue) {
		return nothingToContinueText
	}
	var cerr *engine.CompletionError
	if errors.As(err, &cerr) {
		if cerr.StatusCode > 0 {
			return fmt.Sprintf("⚠️ Ошибка GigaChat: %d", cerr.StatusCode)
		}
		return fmt.Sprintf("⚠️ Ошибка GigaChat: %s", cerr.Class)
	}
	return genericErrorText
}
