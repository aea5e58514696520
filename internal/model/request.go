package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// DeviceDetail is the controller's record for a device, looked up by MAC.
// A detail with an empty MACAddress means the controller does not know the device.
type DeviceDetail struct {
	Device          string `json:"device"`
	PortID          string `json:"port_id,omitempty"`
	MACAddress      string `json:"mac_address,omitempty"`
	SegmentationID  *int   `json:"segmentation_id,omitempty"`
	PhysicalNetwork string `json:"physical_network,omitempty"`
	DeviceOwner     string `json:"device_owner,omitempty"`
	NetworkID       string `json:"network_id,omitempty"`
	NetworkType     string `json:"network_type,omitempty"`
}

// Known reports whether the controller returned a full record for the device.
func (d DeviceDetail) Known() bool {
	return d.MACAddress != ""
}

// VLAN returns the segmentation id, if any.
func (d DeviceDetail) VLAN() (int, bool) {
	if d.SegmentationID == nil || *d.SegmentationID <= 0 {
		return 0, false
	}
	return *d.SegmentationID, true
}

// Port is a port-update notification pushed by the controller.
type Port struct {
	ID            string `json:"id"`
	MACAddress    string `json:"mac_address"`
	DeviceID      string `json:"device_id"`
	BindingHostID string `json:"binding:host_id"`
}

// RequestKey identifies a provision request for deduplication. The same
// adapter can be reported by both the controller and the local detector; those
// reports share a key even when the remaining fields differ.
type RequestKey struct {
	MAC    string
	LparID string
}

func (k RequestKey) String() string {
	return k.MAC + "@" + k.LparID
}

// ProvisionRequest is one device that needs its VLAN bound.
type ProvisionRequest struct {
	SegmentationID  int
	PhysicalNetwork string
	MACAddress      string
	DeviceOwner     string
	LparID          string
	Detail          DeviceDetail
}

// NewProvisionRequest builds a request from a controller record and the
// partition that owns the adapter.
func NewProvisionRequest(detail DeviceDetail, lparID string) ProvisionRequest {
	vlan, _ := detail.VLAN()

	// Copy the segmentation id so the request never aliases caller memory.
	if detail.SegmentationID != nil {
		seg := *detail.SegmentationID
		detail.SegmentationID = &seg
	}

	return ProvisionRequest{
		SegmentationID:  vlan,
		PhysicalNetwork: detail.PhysicalNetwork,
		MACAddress:      NormalizeMAC(detail.MACAddress),
		DeviceOwner:     detail.DeviceOwner,
		LparID:          lparID,
		Detail:          detail,
	}
}

// Key returns the dedup key of the request.
func (r ProvisionRequest) Key() RequestKey {
	return RequestKey{MAC: r.MACAddress, LparID: r.LparID}
}

// DeviceID is the id the controller expects in device up/down reports.
func (r ProvisionRequest) DeviceID() string {
	if r.Detail.Device != "" {
		return r.Detail.Device
	}
	return r.MACAddress
}

// HasVLAN reports whether the request carries a usable segmentation id.
func (r ProvisionRequest) HasVLAN() bool {
	return r.SegmentationID > 0
}

func (r ProvisionRequest) String() string {
	return fmt.Sprintf("%s (lpar %s, vlan %d, physnet %s)", r.MACAddress, r.LparID, r.SegmentationID, r.PhysicalNetwork)
}

// Dedup collapses requests with the same key, keeping the first occurrence
// and the original order.
func Dedup(requests ...[]ProvisionRequest) []ProvisionRequest {
	seen := make(map[RequestKey]struct{})
	var out []ProvisionRequest
	for _, batch := range requests {
		for _, req := range batch {
			key := req.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, req)
		}
	}
	return out
}

// NormalizeMAC converts a MAC address to lower case with colon separators.
// Hypervisor APIs often report 1234567890AB; controllers use 12:34:56:78:90:ab.
func NormalizeMAC(mac string) string {
	mac = strings.ToLower(mac)
	mac = strings.NewReplacer(":", "", "-", "", ".", "").Replace(mac)
	if len(mac) == 0 {
		return ""
	}

	var b strings.Builder
	for i := 0; i < len(mac); i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		end := i + 2
		if end > len(mac) {
			end = len(mac)
		}
		b.WriteString(mac[i:end])
	}
	return b.String()
}

// PartitionIDFromDeviceID converts the controller's device id into the
// partition id used by the bridge layer. UUIDs are upper-cased and have the
// high bit of the first nibble cleared, which the hypervisor requires; any
// other id is only upper-cased.
func PartitionIDFromDeviceID(deviceID string) string {
	u, err := uuid.Parse(deviceID)
	if err != nil {
		return strings.ToUpper(deviceID)
	}

	s := u.String()
	nibble, _ := strconv.ParseUint(s[:1], 16, 8)
	return strings.ToUpper(strconv.FormatUint(nibble&7, 16) + s[1:])
}
