package bot

import "github.com/gudTECH/nag-bot/internal/store"

const genericHelp = "-- gudbot help --\n" +
	"activate -- activate user\n" +
	"inactivate -- deactivate user\n" +
	"set hours HH(:MM)?(AM|PM)?-HH(:MM)?(AM|PM)? -- set start and stop hours\n" +
	"set lunch hours HH(:MM)?(AM|PM)?-HH(:MM)?(AM|PM)? -- set lunch start and stop hours\n" +
	"get hours -- show work and lunch hours\n" +
	"get people -- show the team and their hours\n" +
	"pause -- put everything you have in progress on hold\n" +
	"resume -- pick your previous ticket back up"

const overAssignedHelp = "You have more than one ticket in progress. " +
	"Reply with the number of the one you are actively working on and the " +
	"rest will be put on hold.\n" + genericHelp

const underAssignedHelp = "You have nothing in progress. Reply 'yes' to pick " +
	"your previous ticket back up, or 'no'/'resolve' once you have sorted it " +
	"out yourself.\n" + genericHelp

const afterHoursHelp = "You still have tickets in progress outside your work " +
	"hours. Reply 'yes' to move them all to hold, or 'no' to leave them.\n" +
	genericHelp

// helpFor picks the help body for the dialogue the user is currently in.
func helpFor(conflict *store.Conflict) string {
	if conflict == nil || !conflict.Active {
		return genericHelp
	}
	switch conflict.Kind {
	case store.KindOverAssigned:
		return overAssignedHelp
	case store.KindUnderAssigned:
		return underAssignedHelp
	case store.KindAfterHours:
		return afterHoursHelp
	default:
		return genericHelp
	}
}
