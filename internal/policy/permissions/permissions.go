package permissions

import api "github.com/OvyFlash/telegram-bot-api"

// IsManager reports whether the member can administer the chat itself.
func IsManager(member *api.ChatMember) bool {
	if member == nil {
		return false
	}
	if member.IsCreator() {
		return true
	}
	return member.IsAdministrator() && (member.CanManageChat || member.CanPromoteMembers)
}

// IsPrivilegedModerator reports whether the member may issue moderation
// commands against other members.
func IsPrivilegedModerator(member *api.ChatMember) bool {
	if member == nil {
		return false
	}
	if IsManager(member) {
		return true
	}
	return member.IsAdministrator() && member.CanRestrictMembers
}

// IsExemptFromModeration reports whether the member's messages bypass
// automatic moderation entirely. Admins and the creator are never scored.
func IsExemptFromModeration(member *api.ChatMember) bool {
	if member == nil {
		return false
	}
	return member.IsCreator() || member.IsAdministrator()
}
