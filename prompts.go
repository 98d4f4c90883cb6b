package quizstream

import (
	"fmt"
	"strings"
)

var gradeLabels = map[Grade]string{
	GradeX:   "X (10)",
	GradeXI:  "XI (11)",
	GradeXII: "XII (12)",
}

func systemPrompt(lang Language) string {
	if lang == LangEN {
		return "You are an experienced high school physics teacher. You write clear, accurate exam questions and follow the requested output format exactly, without any extra commentary."
	}
	return "Anda adalah guru fisika SMA yang berpengalaman. Anda menulis soal ujian yang jelas dan akurat, dan selalu mengikuti format keluaran yang diminta tanpa komentar tambahan."
}

// BuildListMessages builds the conversation asking for count questions. position is the
// absolute 1-based slot being generated, or 0 for an unranged batch.
func BuildListMessages(body GenerateBody, position, count int) []Message {
	var sb strings.Builder

	if body.Lang == LangEN {
		sb.WriteString(fmt.Sprintf("Write %d physics question(s) based on this request: %s\n\n", count, body.Prompt))
	} else {
		sb.WriteString(fmt.Sprintf("Buat %d soal fisika berdasarkan permintaan berikut: %s\n\n", count, body.Prompt))
	}

	if body.Topic != "" {
		sb.WriteString(fmt.Sprintf("Topic: %s\n", body.Topic))
	}
	if label, ok := gradeLabels[body.Grade]; ok {
		sb.WriteString(fmt.Sprintf("Grade: %s\n", label))
	}
	if position > 0 {
		sb.WriteString(fmt.Sprintf("This is question number %d of the set; make it different from the others.\n", position))
	}

	if body.Difficulty.IsRandom() {
		sb.WriteString("Difficulty: choose a Bloom level between C1 and C6 that suits the question.\n")
	} else {
		sb.WriteString(fmt.Sprintf("Difficulty: Bloom level %s.\n", strings.ToUpper(string(body.Difficulty))))
	}

	switch body.Type {
	case TypeEssay:
		sb.WriteString("Type: essay.\n")
	case TypeMultipleChoice:
		sb.WriteString("Type: multipleChoice, with the options inside the question text.\n")
	default:
		sb.WriteString("Type: choose essay or multipleChoice.\n")
	}

	if body.Reference != "" {
		sb.WriteString("\nUse the following reference material:\n")
		sb.WriteString(body.Reference)
		sb.WriteString("\n")
	}

	sb.WriteString("\nOutput format:\n")
	sb.WriteString(fmt.Sprintf("- Each question is written as: question text%sdifficulty (C1-C6)%stype (essay or multipleChoice)\n", FieldSeparator, FieldSeparator))
	sb.WriteString(fmt.Sprintf("- Separate questions with %s\n", BlockSeparator))
	sb.WriteString(fmt.Sprintf("- Do not use %s or %s inside the question text\n", FieldSeparator, BlockSeparator))
	sb.WriteString("- Do not add numbering, headings or explanations\n")

	return []Message{
		{Role: RoleSystem, Content: systemPrompt(body.Lang)},
		{Role: RoleUser, Content: sb.String()},
	}
}

// BuildDetailMessages asks for the title, description, answer and topic of the
// question held in body.Prompt.
func BuildDetailMessages(body GenerateBody) []Message {
	var sb strings.Builder

	if body.Lang == LangEN {
		sb.WriteString("Complete the following physics question:\n\n")
	} else {
		sb.WriteString("Lengkapi soal fisika berikut:\n\n")
	}
	sb.WriteString(body.Prompt)
	sb.WriteString("\n\n")

	if body.Topic != "" {
		sb.WriteString(fmt.Sprintf("Topic: %s\n", body.Topic))
	}
	if label, ok := gradeLabels[body.Grade]; ok {
		sb.WriteString(fmt.Sprintf("Grade: %s\n", label))
	}
	if !body.Difficulty.IsRandom() {
		sb.WriteString(fmt.Sprintf("Difficulty: Bloom level %s.\n", strings.ToUpper(string(body.Difficulty))))
	}
	if body.Type == TypeMultipleChoice {
		sb.WriteString("The description must list the answer options A-E; the answer names the correct option.\n")
	}
	if body.Reference != "" {
		sb.WriteString("\nReference material:\n")
		sb.WriteString(body.Reference)
		sb.WriteString("\n")
	}

	sb.WriteString("\nOutput format (one line, exactly three separators):\n")
	sb.WriteString(fmt.Sprintf("title%sfull question description%sworked answer%stopic\n", FieldSeparator, FieldSeparator, FieldSeparator))
	sb.WriteString("Do not add anything else.\n")

	return []Message{
		{Role: RoleSystem, Content: systemPrompt(body.Lang)},
		{Role: RoleUser, Content: sb.String()},
	}
}
