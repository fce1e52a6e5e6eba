package devserver

import (
	"fmt"
	"strings"
)

var defaultQuestions = []string{
	"Why do you want to study in the United States?",
	"Why did you choose this university?",
	"How will you fund your studies?",
	"What are your plans after graduation?",
	"Do you have family or property ties to your home country?",
	"What did you study in your previous degree?",
}

// Interviewer produces the scripted interview: a fixed run of questions and
// a decision derived from the answers.
type Interviewer struct {
	Questions []string
}

// NewInterviewer asks the first n default questions, cycling when n exceeds
// the built-in list.
func NewInterviewer(n int) *Interviewer {
	if n <= 0 {
		n = 1
	}
	qs := make([]string, n)
	for i := range qs {
		qs[i] = defaultQuestions[i%len(defaultQuestions)]
	}
	return &Interviewer{Questions: qs}
}

// Question returns the i-th question (zero based) and whether one exists.
func (iv *Interviewer) Question(i int) (string, bool) {
	if i < 0 || i >= len(iv.Questions) {
		return "", false
	}
	return iv.Questions[i], true
}

// Decide returns the final decision for a set of answers. Answers that are
// too short to say anything count against the applicant.
func (iv *Interviewer) Decide(answers []string) string {
	const minWords = 4
	weak := 0
	for _, a := range answers {
		if len(strings.Fields(a)) < minWords {
			weak++
		}
	}
	if weak*2 > len(answers) || len(answers) == 0 {
		return fmt.Sprintf("Refused: %d of %d answers were too brief to establish your intent.", weak, len(answers))
	}
	return "Approved: your answers were clear and consistent. Your visa is approved."
}
