package slack

import (
	"fmt"

	"github.com/slack-go/slack"

	"github.com/bkmark/slack-integration"
)

const ogImageURL = "https://d1apvrodb6vxub.cloudfront.net/og-image.png"

func mrkdwn(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

func plainText(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, true, false)
}

func linkButton(actionID, label, url string) *slack.ButtonBlockElement {
	button := slack.NewButtonBlockElement(actionID, actionID, plainText(label))
	button.URL = url
	return button
}

// loginPromptBlocks asks an unlinked Slack user to log in to the product.
func loginPromptBlocks(slackID, loginURL string) []slack.Block {
	section := slack.NewSectionBlock(
		mrkdwn(fmt.Sprintf("👋 Hi <@%s>, you're not logged in to Bkmark. Please log in to start syncing the links you share on Slack in Bkmark.", slackID)),
		nil,
		slack.NewAccessory(slack.NewImageBlockElement(ogImageURL, "image")),
	)
	return []slack.Block{
		section,
		slack.NewDividerBlock(),
		slack.NewActionBlock("login_actions", linkButton("log_in_button_click", "Log in to Bkmark", loginURL)),
	}
}

// connectPromptBlocks explains that the channel has no bound collection.
func connectPromptBlocks(slackID, helpURL string) []slack.Block {
	section := slack.NewSectionBlock(
		mrkdwn(fmt.Sprintf("👋 Hi <@%s>, this channel is not linked to a Bkmark collection. Please follow the instructions below to sync all the links shared in this channel to Bkmark.", slackID)),
		nil, nil,
	)
	return []slack.Block{
		section,
		slack.NewDividerBlock(),
		slack.NewActionBlock("connect_actions", linkButton("connect_slack_instructions_click", "View Instructions", helpURL)),
	}
}

// supportPromptBlocks reports a failed sync with a support link.
func supportPromptBlocks(slackID, supportURL string) []slack.Block {
	section := slack.NewSectionBlock(
		mrkdwn(fmt.Sprintf("👋 Hi <@%s>, there was an issue syncing this link to Bkmark. Please contact support for further help.", slackID)),
		nil, nil,
	)
	return []slack.Block{
		section,
		slack.NewDividerBlock(),
		slack.NewActionBlock("support_actions", linkButton("contact_support_click", "Contact Support", supportURL)),
	}
}

// syncedBlocks confirms a synced link.
func syncedBlocks(slackID, recentURL string) []slack.Block {
	section := slack.NewSectionBlock(
		mrkdwn(fmt.Sprintf("👋 Hi <@%s>, this link was synced in Bkmark.", slackID)),
		nil, nil,
	)
	return []slack.Block{
		section,
		slack.NewDividerBlock(),
		slack.NewActionBlock("synced_actions", linkButton("view_saved_link_click", "View Bookmark", recentURL)),
	}
}

// mentionBlocks notifies a user they were mentioned in a bookmark.
func mentionBlocks(slackID, inboxURL string) []slack.Block {
	section := slack.NewSectionBlock(
		mrkdwn(fmt.Sprintf("👋 Hi <@%s>, you were mentioned in a bookmark.", slackID)),
		nil, nil,
	)
	return []slack.Block{
		section,
		slack.NewDividerBlock(),
		slack.NewActionBlock("mention_actions", linkButton("view_inbox_click", "Inbox", inboxURL)),
	}
}

// searchResultBlocks renders the top search hits with send/open actions.
func searchResultBlocks(results []bkmark.Bookmark) []slack.Block {
	blocks := []slack.Block{
		slack.NewSectionBlock(mrkdwn("*Your search results:*\n\n"), nil, nil),
	}

	if len(results) > 4 {
		results = results[:4]
	}

	for _, bookmark := range results {
		title := bookmark.Title
		if title == "" {
			title = bookmark.Metadata.Title
		}
		notes := bookmark.Notes
		if notes == "" {
			notes = bookmark.Metadata.Description
		}

		value := fmt.Sprintf("%s#%s", bookmark.Coll.UUID, bookmark.UUID)
		open := slack.NewButtonBlockElement("open_bookmark", value, plainText("Open"))
		open.URL = bookmark.URL

		blocks = append(blocks,
			slack.NewSectionBlock(mrkdwn(fmt.Sprintf("<%s|*%s*>\n%s", bookmark.URL, title, notes)), nil, nil),
			slack.NewActionBlock("",
				slack.NewButtonBlockElement("send_bookmark", value, plainText("Send")),
				open,
			),
			slack.NewDividerBlock(),
		)
	}

	return blocks
}
