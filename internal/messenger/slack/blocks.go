package slack

import (
	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/skillmatrix/internal/messenger"
)

// Block and action identifiers used by grade buttons.
const (
	GradeActionsBlockID = "grade_actions"
	GradeActionIDPrefix = "grade_"
)

// BuildGradeBlocks builds Slack Block Kit blocks for an escalation. If options
// are provided, an action block with one button per grade is appended below
// the text section. Each button carries the grade id as its value.
func BuildGradeBlocks(text string, options []messenger.Option) []slacklib.Block {
	textBlock := slacklib.NewSectionBlock(
		slacklib.NewTextBlockObject(slacklib.MarkdownType, text, false, false),
		nil,
		nil,
	)

	if len(options) == 0 {
		return []slacklib.Block{textBlock}
	}

	buttons := make([]slacklib.BlockElement, 0, len(options))
	for _, opt := range options {
		btn := slacklib.NewButtonBlockElement(
			GradeActionIDPrefix+opt.Value,
			opt.Value,
			slacklib.NewTextBlockObject(slacklib.PlainTextType, opt.Label, false, false),
		)
		buttons = append(buttons, btn)
	}

	actionBlock := slacklib.NewActionBlock(GradeActionsBlockID, buttons...)

	return []slacklib.Block{textBlock, actionBlock}
}

// BuildNoticeBlocks builds a single markdown section, used for resolutions
// and direct messages.
func BuildNoticeBlocks(text string) []slacklib.Block {
	section := slacklib.NewSectionBlock(
		slacklib.NewTextBlockObject(slacklib.MarkdownType, text, false, false),
		nil,
		nil,
	)

	return []slacklib.Block{section}
}
