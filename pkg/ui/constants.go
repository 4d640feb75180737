package ui

// Table Column Titles
const (
	ColName       = "NAME"
	ColTarget     = "TARGET"
	ColProfile    = "PROFILE"
	ColPortLocal  = "LOCAL"
	ColPortRemote = "REMOTE"
	ColStatus     = "STATUS"
)

// Action Lines / Key Hints
const (
	ActionList       = "Space: Toggle | A: Add | E: Edit | D: Delete | /: Filter | Q: Quit"
	ActionListNarrow = "Space:Toggle | A:Add | E:Edit | D:Del | /:Filter | Q:Quit"
	ActionLoadFailed = "R: Retry | Q: Quit"
	ActionForm       = "Tab/Shift+Tab: Move | Enter: Save | Esc: Cancel"
	ActionConfirm    = "Y: Delete | any other key: Cancel"
)

// Keyboard shortcuts
const (
	ShortcutExit   = "ctrl+x"
	ShortcutToggle = " "
	ShortcutAdd    = "a"
	ShortcutEdit   = "e"
	ShortcutDelete = "d"
	ShortcutRetry  = "r"
	ShortcutFilter = "/"
)

// Numeric Constants for Layout/Indexing
const (
	MinTableHeight  = 4 // Minimum height for tables after calculation
	ListViewOffset  = 9 // Non-table lines in the list view (title, filter box, summary, messages)
	NarrowWidth     = 80
	DefaultWidth    = 80
	DefaultHeight   = 24
	FormInputWidth  = 40
	FilterCharLimit = 156
)

// Status markers shown in the table
const (
	MarkStopped = "○ Stopped"
	MarkRunning = "● Running"
	MarkError   = "✗ Error"
)

// Lipgloss Colors
const (
	ColorBorder     = "240"
	ColorSelectedFg = "229"
	ColorSelectedBg = "57"
	ColorTitle      = "14"  // Cyan for titles
	ColorHelp       = "245" // Grey for help text
	ColorError      = "9"   // Red for errors
	ColorOkay       = "10"  // Green for running sessions and status messages
	ColorInactive   = "8"
	ColorLabel      = "11" // Yellow for form labels
)
