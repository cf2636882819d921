package recognition

// DefaultOverlapIoU is the Intersection over Union above which two detections
// are considered the same physical face.
const DefaultOverlapIoU = 0.6

// ComputeIoU calculates Intersection over Union between two bounding boxes.
// bbox1 and bbox2 are [x1, y1, x2, y2] in the same coordinate system.
func ComputeIoU(bbox1, bbox2 []float64) float64 {
	if len(bbox1) != 4 || len(bbox2) != 4 {
		return 0
	}

	// Calculate intersection.
	x1 := max(bbox1[0], bbox2[0])
	y1 := max(bbox1[1], bbox2[1])
	x2 := min(bbox1[2], bbox2[2])
	y2 := min(bbox1[3], bbox2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)

	// Calculate union.
	area1 := (bbox1[2] - bbox1[0]) * (bbox1[3] - bbox1[1])
	area2 := (bbox2[2] - bbox2[0]) * (bbox2[3] - bbox2[1])
	union := area1 + area2 - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// DedupOverlapping drops detections whose bounding box overlaps an earlier
// detection above the IoU threshold. Detectors occasionally report the same
// physical face twice; keeping both would let one student claim two faces or
// shadow a neighbor during assignment. Detections arrive ordered by detector
// confidence, so the earlier one wins.
func DedupOverlapping(faces []QueryFace, iouThreshold float64) []QueryFace {
	if iouThreshold <= 0 {
		iouThreshold = DefaultOverlapIoU
	}

	kept := make([]QueryFace, 0, len(faces))
	for _, face := range faces {
		overlaps := false
		for _, k := range kept {
			if ComputeIoU(face.BBox, k.BBox) >= iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, face)
		}
	}
	return kept
}
