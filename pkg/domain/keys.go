package domain

// Namespace partitions the record space by owning registry. Namespaces are
// part of the storage contract: changing one orphans every record under it.
type Namespace string

const (
	NamespaceIdentity   Namespace = "kyc_user"
	NamespaceProvider   Namespace = "kyc_provider"
	NamespaceBlacklist  Namespace = "blacklist"
	NamespaceAuthority  Namespace = "aml_authority"
	NamespaceAlert      Namespace = "aml_alert"
	NamespaceMintInfo   Namespace = "mint_info"
	NamespaceBalance    Namespace = "balance"
	NamespaceReserve    Namespace = "reserve"
	NamespaceRedemption Namespace = "redemption"
)

// StorageKey derives the storage location of a record as a pure function of
// (namespace, entity id). Any caller can compute where a record lives without
// a lookup service, and two registries can never collide on a key.
func StorageKey(ns Namespace, entityID string) string {
	return string(ns) + "/" + entityID
}
