package domain

import "fmt"

type Step int

const (
	StepPersonaConfig    Step = 1
	StepShowStructure    Step = 2
	StepGenerateDialogue Step = 3
	StepRefineScript     Step = 4
	StepFinalReview      Step = 5
)

func (s Step) String() string {
	switch s {
	case StepPersonaConfig:
		return "persona_config"
	case StepShowStructure:
		return "show_structure"
	case StepGenerateDialogue:
		return "generate_dialogue"
	case StepRefineScript:
		return "refine_script"
	case StepFinalReview:
		return "final_review"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

func (s Step) IsValid() bool {
	return s >= StepPersonaConfig && s <= StepFinalReview
}
