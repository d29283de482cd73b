package prompts

import (
	"strings"

	"voxareflect/internal/models"
	"voxareflect/internal/phases"
)

// SummaryInstructions is the instruction text for the reflection summary call.
const SummaryInstructions = "You are an expert in reflective learning and student development. " +
	"Analyse thoughtfully and give actionable feedback."

// SummaryInput renders the finished conversation for the summary call: the full
// history, the exchange of this turn and the running reflection text.
func SummaryInput(history []models.Message, question, reply, reflectionText string) string {
	var b strings.Builder
	b.WriteString("You are a reflective learning expert reviewing a completed student reflection.\n\n" +
		"The student has worked through a Gibbs reflection cycle in a guided conversation. " +
		"Read the whole conversation below to follow their journey.\n\n" +
		"Write a summary with these parts:\n\n" +
		"1. **Key Insights** (2-3 sentences): What did they learn? Which links did they draw between the experience and theory?\n" +
		"2. **Action Plans** (bullet points): Which concrete steps did they commit to? Be specific.\n" +
		"3. **Growth Observed** (1-2 sentences): How did their understanding develop from description to action?\n\n" +
		"Keep it concise, actionable and supportive.\n\n" +
		"Write the summary in the same language as the conversation.\n\n" +
		"--- CONVERSATION HISTORY ---\n\n")

	for _, msg := range history {
		sender := "Coach"
		if msg.Sender == models.SenderUser {
			sender = "Student"
		}
		b.WriteString(sender + ": " + msg.Content + "\n\n")
	}
	b.WriteString("Student: " + question + "\n\n")
	b.WriteString("Coach: " + reply + "\n\n")
	b.WriteString("--- END OF CONVERSATION ---\n\n")
	b.WriteString("Student's accumulated reflection text:\n" + strings.TrimSpace(reflectionText) + "\n\n")
	b.WriteString("Now write your summary in the correct language.")
	return b.String()
}

// TitlePrompt asks for a 2-3 word title for a reflective text.
func TitlePrompt(text, language string) string {
	if language == "de" {
		return "Suggest a very short (2-3 words) title for this German reflective text:\n\n" + text +
			"\n\nThe title should suit a reflective text. Return only the title, without quotes or other symbols, and no other text. Your output must be in German."
	}
	return "Suggest a very short (2-3 words) title for this reflective text:\n\n" + text +
		"\n\nThe title should suit a reflective text. Return only the title, without quotes or other symbols, and no other text."
}

var stageDescriptions = map[phases.Phase]string{
	phases.Description: "describes the event the student is reflecting on.",
	phases.Feelings:    "describes the student's thoughts and feelings while they were in the situation.",
	phases.Evaluation:  "describes the student's opinion on the good and bad points of how they responded at the time.",
	phases.Analysis:    "explains the reasons behind the student's opinion of the incident, possibly citing references that support their concerns.",
	phases.Conclusion:  "summarises what happened and what the student gained from the event.",
	phases.ActionPlan:  "describes what the student would do differently if a similar situation came up again.",
}

// StagePresencePrompt asks whether text contains a sentence of the given Gibbs stage.
// The answer starts with yes or no.
func StagePresencePrompt(text string, stage phases.Phase) string {
	return "Imagine you are a university teacher. Your student has written this reflective text:\n\n" + text +
		"\n\nDoes any sentence of the text belong to the '" + string(stage) + "' class of the Gibbs reflective cycle? (This class " +
		stageDescriptions[stage] +
		") Start your answer with a clear yes or no, then explain it in 1-2 sentences."
}

// AnswerIsYes reports whether a stage-presence answer starts with yes.
func AnswerIsYes(answer string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "yes")
}

// FinalFeedbackPrompt asks for feedback on a text that already covers every stage.
func FinalFeedbackPrompt(text, language string) string {
	if language == "de" {
		return "Stell dir vor, du unterrichtest einen Bachelorkurs für Wirtschaftsstudierende zum Thema Business Process Management " +
			"(Grundlagen des Prozessmanagements, Prozessnotation, Prozessdesign und -redesign, Process Mining). Neben der Vorlesung sollen die Studierenden " +
			"in reflektierenden Schreibübungen über die Inhalte, Übungen und Fallstudien nachdenken. Dein Student hat diesen reflektierenden Text geschrieben:\n\n" +
			strings.TrimSpace(text) +
			"\n\nDer Text ist schon in sehr gutem Zustand und scheint alle Teile des Gibbs-Reflexionszyklus zu enthalten. Gib trotzdem Rückmeldung, " +
			"die beim Verbessern hilft, zum Beispiel zu Klarheit und Schreibqualität. Beginne etwa mit 'Fantastisch gemacht mit deinem reflektierenden Text! " +
			"Es sieht so aus, als ob du fast alle notwendigen Komponenten aus dem Gibbs-Reflexionszyklus einbezogen hast.' und schließe mit " +
			"'Wenn du Fragen hast, lass es mich bitte wissen!'. Schreibe nur auf Deutsch, sprich den Studenten mit 'Du' an und richte dich an ihn, nicht an seine Lehrkraft."
	}
	return "Imagine you teach a bachelor course for business students on business process management " +
		"(foundations of process management, process notation, process design and redesign, process mining). Besides the lectures, the students " +
		"write reflective texts about the content, exercises and case studies. Your student has written this reflective text:\n\n" +
		strings.TrimSpace(text) +
		"\n\nThe text is already in very good shape and seems to cover every part of the Gibbs reflective cycle. Still give feedback that helps them improve, " +
		"for example on clarity and writing quality. Start with something like 'Great job on your reflective text! It looks like you have included almost all " +
		"the components of the Gibbs reflective cycle.' and end with 'If you have any questions, please let me know!'. Address the student directly, not their teacher."
}

var guidingQuestionsEN = map[phases.Phase]string{
	phases.Description: "Actually, I cannot find a detailed description of the event in the text. Can you describe the event you are reflecting on in more detail?\nIf you think you have written the \"Description\" class in your text, just click on the \"Feedback\" button again.",
	phases.Feelings:    "I can already find the description class of the Gibbs cycle in the text. Can you also describe your thoughts and feelings when you were in the situation?\nIf you think you have written the \"Feelings\" class in your text, just click on the \"Feedback\" button again.",
	phases.Evaluation:  "I can already find the description and feelings classes of the Gibbs cycle in the text. Can you also describe your opinion on the positive or negative points of your response at the time of the event?\nIf you think you have written the \"Evaluation\" class in your text, just click on the \"Feedback\" button again.",
	phases.Analysis:    "I can already find the description, feelings, and evaluation classes of the Gibbs cycle in the text. Can you also describe the reasons for your opinion on the incident? You can also refer to references that support your concerns!\nIf you think you have written the \"Analysis\" class in your text, just click on the \"Feedback\" button again.",
	phases.Conclusion:  "I can already find the description, feelings, evaluation, and analysis classes of the Gibbs cycle in the text. Can you now summarize what happened and what you gained from the event?\nIf you think you have written the \"Conclusion\" class in your text, just click on the \"Feedback\" button again.",
	phases.ActionPlan:  "I can find almost all components of the Gibbs reflective cycle in your writing :) For the last component: can you now tell us what you would do differently if you were faced with a similar situation next time?\nIf you think you have written the \"Action Plan\" class in your text, just click on the \"Feedback\" button again.",
}

var guidingQuestionsDE = map[phases.Phase]string{
	phases.Description: "Im Text finde ich noch keine genaue Beschreibung des Ereignisses. Kannst du das Ereignis, über das du nachdenkst, genauer beschreiben?\nWenn du denkst, dass die Klasse „Beschreibung“ schon in deinem Text steht, klicke einfach erneut auf „Feedback“.",
	phases.Feelings:    "Die Beschreibung aus dem Gibbs-Zyklus finde ich bereits im Text. Kannst du auch deine Gedanken und Gefühle in der Situation beschreiben?\nWenn du denkst, dass die Klasse „Gefühle“ schon in deinem Text steht, klicke einfach erneut auf „Feedback“.",
	phases.Evaluation:  "Beschreibung und Gefühle aus dem Gibbs-Zyklus finde ich bereits im Text. Kannst du auch schildern, was du an deiner damaligen Reaktion positiv oder negativ fandest?\nWenn du denkst, dass die Klasse „Bewertung“ schon in deinem Text steht, klicke einfach erneut auf „Feedback“.",
	phases.Analysis:    "Beschreibung, Gefühle und Bewertung aus dem Gibbs-Zyklus finde ich bereits im Text. Kannst du auch die Gründe für deine Einschätzung des Vorfalls beschreiben? Du kannst dich dabei auf Quellen stützen!\nWenn du denkst, dass die Klasse „Analyse“ schon in deinem Text steht, klicke einfach erneut auf „Feedback“.",
	phases.Conclusion:  "Beschreibung, Gefühle, Bewertung und Analyse aus dem Gibbs-Zyklus finde ich bereits im Text. Kannst du nun zusammenfassen, was passiert ist und was du daraus mitnimmst?\nWenn du denkst, dass die Klasse „Schlussfolgerung“ schon in deinem Text steht, klicke einfach erneut auf „Feedback“.",
	phases.ActionPlan:  "Fast alle Teile des Gibbs-Reflexionszyklus finde ich in deinem Text wieder :) Zum letzten Teil: Was würdest du anders machen, wenn du wieder in eine ähnliche Situation kämst?\nWenn du denkst, dass die Klasse „Aktionsplan“ schon in deinem Text steht, klicke einfach erneut auf „Feedback“.",
}

// GuidingQuestion is the canned prompt for a stage the text is missing.
func GuidingQuestion(stage phases.Phase, language string) string {
	if language == "de" {
		return guidingQuestionsDE[stage]
	}
	return guidingQuestionsEN[stage]
}

// StarterMessage is the text of the "practical ideas" starter button.
func StarterMessage(language string) string {
	if language == "de" {
		return "Gib mir einige praktische Ideen, wie ich mit dem Schreiben meines reflektierenden Textes nach dem Gibbs-Modell beginnen kann."
	}
	return "Give me some practical ideas on how to start writing my reflective text using the Gibbs model."
}

// StarterReplyPrefix heads the reply to the starter button.
func StarterReplyPrefix(language string) string {
	if language == "de" {
		return "Ideen für reflektierendes Schreiben:\n"
	}
	return "Ideas for reflective writing:\n"
}
