package reputation

import "sort"

// EmojiTable — неизменяемая таблица "эмодзи → очки".
// Строится один раз при старте и передаётся в Service явно.
type EmojiTable struct {
	points map[string]int
}

// NewEmojiTable копирует переданную карту, так что последующие изменения
// исходной карты таблицу не затрагивают.
func NewEmojiTable(points map[string]int) EmojiTable {
	cp := make(map[string]int, len(points))
	for emoji, p := range points {
		cp[emoji] = p
	}
	return EmojiTable{points: cp}
}

// Points возвращает очки за эмодзи; false — эмодзи не приносит репутацию.
func (t EmojiTable) Points(emoji string) (int, bool) {
	p, ok := t.points[emoji]
	return p, ok
}

// Sources возвращает все настроенные эмодзи в стабильном порядке.
func (t EmojiTable) Sources() []string {
	out := make([]string, 0, len(t.points))
	for emoji := range t.points {
		out = append(out, emoji)
	}
	sort.Strings(out)
	return out
}

// Len — количество настроенных эмодзи.
func (t EmojiTable) Len() int { return len(t.points) }
