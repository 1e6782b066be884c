package auth

// PermissionInfo describes one fine-grained permission for display.
type PermissionInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Module string `json:"module"`
}

const (
	PermDashboardView = "dashboard_view"
	PermInvoiceCreate = "invoice_create"
	PermInvoiceView   = "invoice_view"
	PermInvoiceEdit   = "invoice_edit"
	PermInvoiceDelete = "invoice_delete"
	PermQuoteCreate   = "quote_create"
	PermQuoteView     = "quote_view"
	PermQuoteEdit     = "quote_edit"
	PermQuoteDelete   = "quote_delete"
	PermPaymentCreate = "payment_create"
	PermPaymentView   = "payment_view"
	PermPaymentEdit   = "payment_edit"
	PermPaymentDelete = "payment_delete"
	PermClientCreate  = "client_create"
	PermClientView    = "client_view"
	PermClientEdit    = "client_edit"
	PermClientDelete  = "client_delete"
	PermSettingsView  = "settings_view"
	PermSettingsEdit  = "settings_edit"
	PermAdminCreate   = "admin_create"
	PermAdminView     = "admin_view"
	PermAdminEdit     = "admin_edit"
	PermAdminDelete   = "admin_delete"
)

var catalogue = []PermissionInfo{
	{PermDashboardView, "View Dashboard", "dashboard"},
	{PermInvoiceCreate, "Create Invoice", "invoice"},
	{PermInvoiceView, "View Invoice", "invoice"},
	{PermInvoiceEdit, "Edit Invoice", "invoice"},
	{PermInvoiceDelete, "Delete Invoice", "invoice"},
	{PermQuoteCreate, "Create Quote", "quote"},
	{PermQuoteView, "View Quote", "quote"},
	{PermQuoteEdit, "Edit Quote", "quote"},
	{PermQuoteDelete, "Delete Quote", "quote"},
	{PermPaymentCreate, "Create Payment", "payment"},
	{PermPaymentView, "View Payment", "payment"},
	{PermPaymentEdit, "Edit Payment", "payment"},
	{PermPaymentDelete, "Delete Payment", "payment"},
	{PermClientCreate, "Create Client", "client"},
	{PermClientView, "View Client", "client"},
	{PermClientEdit, "Edit Client", "client"},
	{PermClientDelete, "Delete Client", "client"},
	{PermSettingsView, "View Settings", "settings"},
	{PermSettingsEdit, "Edit Settings", "settings"},
	{PermAdminCreate, "Create Admin", "admin"},
	{PermAdminView, "View Admin", "admin"},
	{PermAdminEdit, "Edit Admin", "admin"},
	{PermAdminDelete, "Delete Admin", "admin"},
}

// Catalogue returns the display list of permissions. It is not consulted by checks.
func Catalogue() []PermissionInfo {
	out := make([]PermissionInfo, len(catalogue))
	copy(out, catalogue)
	return out
}

// KnownPermission reports whether perm appears in the catalogue.
func KnownPermission(perm string) bool {
	for _, p := range catalogue {
		if p.ID == perm {
			return true
		}
	}
	return false
}
