package checklist

// Notice is a dismissible message for the user.
type Notice struct {
	Title       string
	Description string
	// Destructive marks failures.
	Destructive bool
}

// Notifier delivers notices to whatever is presenting the checklist.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type discardNotifier struct{}

func (discardNotifier) Notify(Notice) {}

var (
	noticeProgressLoaded = Notice{
		Title:       "Progress loaded",
		Description: "Your checklist progress has been restored from your account.",
	}
	noticeProgressSavedExisting = Notice{
		Title:       "Progress saved",
		Description: "Your current progress has been saved to your account.",
	}
	noticeProgressSavedNew = Notice{
		Title:       "Progress saved",
		Description: "Your checklist progress has been saved to your account.",
	}
	noticeChecklistError = Notice{
		Title:       "Error with checklist data",
		Description: "There was an error managing your progress data.",
		Destructive: true,
	}
	noticeReportMalformed = Notice{
		Title:       "Error loading report",
		Description: "The report data could not be loaded properly.",
		Destructive: true,
	}
	noticeReportNotFound = Notice{
		Title:       "Report not found",
		Description: "The requested report could not be found.",
		Destructive: true,
	}
	noticeReportRemoteError = Notice{
		Title:       "Error loading report",
		Description: "There was an error loading the report from the database.",
		Destructive: true,
	}
	noticeNameRequired = Notice{
		Title:       "Name required",
		Description: "Please enter a name for this multisig report",
		Destructive: true,
	}
	noticeSignedOut = Notice{
		Title:       "Signed Out",
		Description: "Your progress has been saved and you have been signed out.",
	}
	noticeSignOutError = Notice{
		Title:       "Sign Out Error",
		Description: "Failed to sign out. Please try again.",
		Destructive: true,
	}
)

// LinkCopiedNotice is shown once a share link has been copied.
var LinkCopiedNotice = Notice{
	Title:       "Link generated and copied",
	Description: "Share this link to provide access to this report",
}

func linkErrorNotice(err error) Notice {
	return Notice{Title: "Error generating link", Description: err.Error(), Destructive: true}
}

func signInErrorNotice(provider string) Notice {
	return Notice{
		Title:       "Authentication Error",
		Description: "Failed to sign in with " + provider + ". Please try again.",
		Destructive: true,
	}
}
