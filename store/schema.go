package store

import "fmt"

// Single-table attribute names. The table keys on
// partitionKey/sortKey with two secondary index projections.
const (
	AttrPartitionKey     = "partitionKey"
	AttrSortKey          = "sortKey"
	AttrGSI1PartitionKey = "gsi1PartitionKey"
	AttrGSI1SortKey      = "gsi1SortKey"
	AttrGSI2PartitionKey = "gsi2PartitionKey"
	AttrGSI2SortKey      = "gsi2SortKey"
	AttrData             = "data"
	AttrType             = "type"
	AttrCreated          = "created"
	AttrUpdated          = "updated"

	// Index names
	IndexGSI1 = "gsi1"
	IndexGSI2 = "gsi2"
)

// Entity type discriminators, mirrored in the key prefixes.
const (
	TypeUser              = "user"
	TypeCollection        = "collection"
	TypeSlackUser         = "slack-user"
	TypeSlackTeam         = "slack-team"
	TypeSlackInstallation = "slack-installation"
)

// Key builders

// User keys: partitionKey = sortKey = user#{uuid}
func UserKey(uuid string) string {
	return fmt.Sprintf("user#%s", uuid)
}

// Collection keys: partitionKey = organisation#{orgID}, sortKey = collection#{uuid}
func OrganisationKey(orgID string) string {
	return fmt.Sprintf("organisation#%s", orgID)
}

func CollectionKey(uuid string) string {
	return fmt.Sprintf("collection#%s", uuid)
}

// Channel binding projection: gsi1 = team#{teamID} / channel#{channelID},
// gsi2 = domain#{domain} / channel#{channelID}
func TeamKey(teamID string) string {
	return fmt.Sprintf("team#%s", teamID)
}

func ChannelKey(channelID string) string {
	return fmt.Sprintf("channel#%s", channelID)
}

func DomainKey(domain string) string {
	return fmt.Sprintf("domain#%s", domain)
}

// Slack user keys: partitionKey = slack-team#{teamID}, sortKey = slack-user#{slackID}
func SlackTeamKey(id string) string {
	return fmt.Sprintf("slack-team#%s", id)
}

func SlackUserKey(slackID string) string {
	return fmt.Sprintf("slack-user#%s", slackID)
}

// Slack team domain projection uses the slack-team prefix on the domain.
// Teams without a domain share a sentinel so the projection stays populated.
func SlackTeamDomainKey(domain string) string {
	if domain == "" {
		domain = "no-domain"
	}
	return fmt.Sprintf("slack-team#%s", domain)
}

// Slack installation keys: partitionKey = sortKey = slack-installation#{id}
func SlackInstallationKey(id string) string {
	return fmt.Sprintf("slack-installation#%s", id)
}

// indexPartitionAttr maps an index name to its partition key attribute.
func indexPartitionAttr(index string) string {
	if index == IndexGSI2 {
		return AttrGSI2PartitionKey
	}
	return AttrGSI1PartitionKey
}

// indexSortAttr maps an index name to its sort key attribute.
func indexSortAttr(index string) string {
	if index == IndexGSI2 {
		return AttrGSI2SortKey
	}
	return AttrGSI1SortKey
}
