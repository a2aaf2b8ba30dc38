package datalake

import (
	"fmt"
	"strings"
	"time"
)

const (
	ehrRoot    = "ehr"
	rawRoot    = "raw_data_response"
	dateLayout = "2006-01-02"
	binaryKind = "Binary"
	jsonSuffix = ".json"
)

// ResourcePath is where a clinical resource lands, partitioned by tenant and
// publish date: ehr/<type>/fhir_tenant_id=<tenant>/_date=<YYYY-MM-DD>/<id>.json
func ResourcePath(tenantID, resourceType, resourceID string, date time.Time) string {
	return fmt.Sprintf("%s/%s/fhir_tenant_id=%s/_date=%s/%s%s",
		ehrRoot, strings.ToLower(resourceType), tenantID, date.Format(dateLayout), resourceID, jsonSuffix)
}

// BinaryPath is not date partitioned so a Binary can be found again by id:
// ehr/Binary/fhir_tenant_id=<tenant>/<id>.json
func BinaryPath(tenantID, resourceID string) string {
	return fmt.Sprintf("%s/%s/fhir_tenant_id=%s/%s%s", ehrRoot, binaryKind, tenantID, resourceID, jsonSuffix)
}

// RawDataPath is raw_data_response/tenant_id=<tenant>/transaction_id/<transaction>.
func RawDataPath(tenantID, transactionID string) string {
	return fmt.Sprintf("%s/tenant_id=%s/transaction_id/%s", rawRoot, tenantID, transactionID)
}

// KeyTenant reports the tenant that owns key under any of the layouts above.
func KeyTenant(key string) (string, bool) {
	parts := strings.Split(key, "/")
	for _, part := range parts {
		if part == ".." {
			return "", false
		}
	}

	var tenantID string
	var ok bool
	switch {
	case len(parts) >= 4 && parts[0] == ehrRoot:
		tenantID, ok = strings.CutPrefix(parts[2], "fhir_tenant_id=")
	case len(parts) >= 3 && parts[0] == rawRoot:
		tenantID, ok = strings.CutPrefix(parts[1], "tenant_id=")
	}
	if !ok || tenantID == "" {
		return "", false
	}
	return tenantID, true
}

func IsBinaryPath(key string) bool {
	return strings.HasPrefix(key, ehrRoot+"/"+binaryKind+"/")
}
