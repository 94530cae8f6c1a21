package authz

const (
	RoleAdmin     = "admin"
	RoleDataEntry = "data-entry"
	RoleViewer    = "viewer"
	RoleAnonymous = "anonymous"
)

// Actions mirror the application's two data capabilities: ViewData gates
// reads of tenant-scoped records, EditData gates every mutation.
const (
	ActionViewData = "view_data"
	ActionEditData = "edit_data"
	ActionAdmin    = "admin"
)

const DomainGlobal = "global"

const (
	ObjectAuthSession   = "auth.session"
	ObjectRecordsEvents = "records.events"
	ObjectRecordsLosses = "records.losses"
	ObjectRecordsAssets = "records.assets"
	ObjectRecordsRules  = "records.rules"
	ObjectRefSectors    = "ref.sectors"
	ObjectRefHazards    = "ref.hazards"
)
