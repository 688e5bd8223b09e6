package service

// Ids that pass the uuid validation on request payloads.
const (
	studentAsha     = "5b9d6c1e-8a34-4f6e-9d2b-1c7e0a4f3b21"
	unknownStudent  = "0f1e2d3c-4b5a-4968-8776-a5b4c3d2e1f0"
	sessionBatch    = "a3c1e5f7-2b4d-4e6f-8a0c-1e3f5a7c9b2d"
	unknownSession  = "a3c1e5f7-2b4d-4e6f-8a0c-000000000009"
	courseMaths     = "c0ffee00-1111-4222-8333-444455556666"
	unknownCourse   = "c0ffee00-1111-4222-8333-000000000404"
	feeEntryTuition = "fe000001-7a7a-4b4b-8c8c-d1d1d1d1d1d1"
	feeEntryExam    = "fe000003-7a7a-4b4b-8c8c-d3d3d3d3d3d3"
	unknownFeeEntry = "fe0000ff-7a7a-4b4b-8c8c-ffffffffffff"
	adminAlice      = "8a0f3c1e-5b7d-4e2a-9c6f-1d2e3f4a5b01"
	parentRavi      = "8a0f3c1e-5b7d-4e2a-9c6f-1d2e3f4a5b02"
	teacherMeena    = "8a0f3c1e-5b7d-4e2a-9c6f-1d2e3f4a5b03"
)
