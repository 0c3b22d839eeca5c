package history

import "strings"

// FormatByDay renders a chronological message sequence as prompt-ready text:
// messages are grouped by UTC calendar day, each day opening with a
// "--- YYYY-MM-DD ---" header, each message on its own "HH:MM author:
// content" line. Pure function of the input, single pass, one builder.
//
// This sits on the request hot path right after retrieval, so it avoids
// time.Format and intermediate slices.
func FormatByDay(msgs []Message) string {
	if len(msgs) == 0 {
		return ""
	}

	var b strings.Builder
	// Rough estimate: content plus ~20 bytes of timestamp/name framing per line.
	size := 0
	for i := range msgs {
		size += len(msgs[i].Content) + len(msgs[i].AuthorName) + 20
	}
	b.Grow(size)

	var currentDay [10]byte // YYYY-MM-DD
	haveDay := false

	for i := range msgs {
		t := msgs[i].CreatedAt.UTC()
		year, month, day := t.Date()

		var dayKey [10]byte
		writeFourDigits(dayKey[0:4], year)
		dayKey[4] = '-'
		writeTwoDigits(dayKey[5:7], int(month))
		dayKey[7] = '-'
		writeTwoDigits(dayKey[8:10], day)

		if !haveDay || dayKey != currentDay {
			if haveDay {
				b.WriteByte('\n')
			}
			b.WriteString("--- ")
			b.Write(dayKey[:])
			b.WriteString(" ---\n")
			currentDay = dayKey
			haveDay = true
		}

		var clock [5]byte // HH:MM
		writeTwoDigits(clock[0:2], t.Hour())
		clock[2] = ':'
		writeTwoDigits(clock[3:5], t.Minute())

		b.Write(clock[:])
		b.WriteByte(' ')
		b.WriteString(msgs[i].AuthorName)
		b.WriteString(": ")
		b.WriteString(msgs[i].Content)
		b.WriteByte('\n')
	}

	return strings.TrimRight(b.String(), "\n")
}

func writeTwoDigits(dst []byte, v int) {
	dst[0] = byte('0' + v/10%10)
	dst[1] = byte('0' + v%10)
}

func writeFourDigits(dst []byte, v int) {
	dst[0] = byte('0' + v/1000%10)
	dst[1] = byte('0' + v/100%10)
	dst[2] = byte('0' + v/10%10)
	dst[3] = byte('0' + v%10)
}
