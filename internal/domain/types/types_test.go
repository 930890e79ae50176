package types_test

import (
	"encoding/json"
	"testing"

	types "github.com/okian/scoutsync/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRecordRequest(t *testing.T) {
	Convey("Given a record request body", t, func() {
		body := `{"match_key":"2026casj_qm1","team_key":"frc254","observer_name":"ada","alliance":"red","position":2,"auto":{"coral":3}}`

		Convey("When it is decoded", func() {
			var req types.RecordRequest
			err := json.Unmarshal([]byte(body), &req)

			Convey("Then payload sections should stay raw", func() {
				So(err, ShouldBeNil)
				So(req.ID, ShouldBeEmpty)
				So(string(req.Auto), ShouldEqual, `{"coral":3}`)
				So(req.Teleop, ShouldBeNil)
			})
		})
	})
}

func TestStatus(t *testing.T) {
	Convey("Given a status with no history", t, func() {
		raw, err := json.Marshal(types.Status{Summary: "idle", State: "idle"})
		So(err, ShouldBeNil)

		Convey("Then optional fields should be omitted", func() {
			So(string(raw), ShouldNotContainSubstring, "last_success")
			So(string(raw), ShouldContainSubstring, `"pending":0`)
		})
	})
}
